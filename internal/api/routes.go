package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foxzool/open-lark-sub013/internal/api/handlers"
	apiMiddleware "github.com/foxzool/open-lark-sub013/internal/api/middleware"
	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/logger"
)

// operatorRole may trigger mutating admin actions.
const operatorRole = "operator"

// Server is the admin HTTP surface.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	auth         *apiMiddleware.AuthConfig
	adminHandler *handlers.AdminHandler
	httpServer   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, source handlers.StatusSource) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		auth:         apiMiddleware.NewAuthConfig(cfg.Admin),
		adminHandler: handlers.NewAdminHandler(source, cfg),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Admin.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Admin.ReadTimeout,
		WriteTimeout: cfg.Admin.WriteTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	// Probes stay unauthenticated.
	s.router.Get("/health", s.adminHandler.HealthCheck)

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(apiMiddleware.Auth(s.auth))

		r.Get("/status", s.adminHandler.GetStatus)
		r.Get("/config", s.adminHandler.GetConfig)

		r.With(apiMiddleware.RequireRole(s.auth, operatorRole)).
			Post("/shutdown", s.adminHandler.Shutdown)
	})

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start serves until Shutdown is called. It blocks.
func (s *Server) Start() error {
	logger.Info().Str("addr", s.httpServer.Addr).Msg("admin server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
