package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/logger"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// RoleAdmin satisfies every role check.
const RoleAdmin = "admin"

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	APIKeys   map[string]bool
}

// NewAuthConfig builds the middleware config from the admin settings.
func NewAuthConfig(cfg config.AdminConfig) *AuthConfig {
	keys := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	return &AuthConfig{
		Enabled:   cfg.AuthEnabled,
		JWTSecret: cfg.JWTSecret,
		APIKeys:   keys,
	}
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth accepts either an X-API-Key header or an HS256 bearer token. API key
// callers act as admin.
func Auth(cfg *AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				if !cfg.APIKeys[apiKey] {
					deny(w, r, "Invalid API key")
					return
				}
				claims := &Claims{UserID: "api-key", Role: RoleAdmin}
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserContextKey, claims)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				deny(w, r, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				deny(w, r, "Invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

			if err != nil || !token.Valid {
				deny(w, r, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, r *http.Request, msg string) {
	logger.Warn().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Str("reason", msg).
		Msg("admin request rejected")
	http.Error(w, msg, http.StatusUnauthorized)
}

// GetUser retrieves user claims from context
func GetUser(ctx context.Context) *Claims {
	claims, ok := ctx.Value(UserContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// RequireRole returns a middleware that requires a specific role. With auth
// disabled there are no claims and every request passes.
func RequireRole(cfg *AuthConfig, role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			claims := GetUser(r.Context())
			if claims == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if claims.Role != role && claims.Role != RoleAdmin {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
