package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/supervisor"
	"github.com/foxzool/open-lark-sub013/pkg/wsclient"
)

// StatusSource is the connection being administered.
type StatusSource interface {
	Status() supervisor.Status
	Close()
}

// AdminHandler handles admin API requests
type AdminHandler struct {
	source StatusSource
	config *config.Config
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(source StatusSource, cfg *config.Config) *AdminHandler {
	return &AdminHandler{
		source: source,
		config: cfg,
	}
}

// HealthCheck handles GET /health. It is healthy while the push connection
// is open.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()

	state := wsclient.StateConnecting
	if st.Client != nil {
		state = st.Client.State
	}

	if state != wsclient.StateOpen {
		h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":     "unhealthy",
			"connection": state,
			"error":      st.LastError,
		})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"connection": state,
	})
}

// GetStatus handles GET /admin/status
func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.source.Status())
}

// GetConfig handles GET /admin/config. Secrets are not included.
func (h *AdminHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		h.respondError(w, http.StatusNotFound, "config not available")
		return
	}
	c := h.config

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"app": map[string]interface{}{
			"id":     c.App.ID,
			"domain": c.App.Domain,
		},
		"client": map[string]interface{}{
			"heartbeat_timeout":      c.Client.HeartbeatTimeout.String(),
			"liveness_interval":      c.Client.LivenessInterval.String(),
			"write_timeout":          c.Client.WriteTimeout.String(),
			"reassembly_ttl":         c.Client.ReassemblyTTL.String(),
			"reassembly_max_entries": c.Client.ReassemblyMaxEntries,
			"workers":                c.Client.Workers,
			"skip_malformed_frames":  c.Client.SkipMalformedFrames,
			"handle_types":           c.Client.HandleTypes,
			"ignore_types":           c.Client.IgnoreTypes,
		},
		"supervisor": map[string]interface{}{
			"max_attempts":         c.Supervisor.MaxAttempts,
			"fallback_interval":    c.Supervisor.FallbackInterval.String(),
			"breaker_max_failures": c.Supervisor.BreakerMaxFailures,
			"breaker_timeout":      c.Supervisor.BreakerTimeout.String(),
		},
		"sink": map[string]interface{}{
			"enabled":        c.Sink.Enabled,
			"addr":           c.Sink.Addr,
			"channel_prefix": c.Sink.ChannelPrefix,
		},
	})
}

// Shutdown handles POST /admin/shutdown. The connection is closed
// gracefully and no reconnect follows.
func (h *AdminHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("shutdown requested via admin api")
	h.source.Close()

	h.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "shutting down",
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
