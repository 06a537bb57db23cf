package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/supervisor"
	"github.com/foxzool/open-lark-sub013/pkg/wsclient"
)

type fakeSource struct {
	status supervisor.Status
	closed bool
}

func (f *fakeSource) Status() supervisor.Status { return f.status }
func (f *fakeSource) Close()                    { f.closed = true }

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAdminHandler_respondJSON(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestAdminHandler_respondError(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	h.respondError(w, http.StatusNotFound, "config not available")

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Not Found", body["error"])
	assert.Equal(t, "config not available", body["message"])
}

func TestAdminHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		status     supervisor.Status
		wantCode   int
		wantStatus string
		wantConn   string
	}{
		{
			name:       "open",
			status:     supervisor.Status{Client: &wsclient.Stats{State: wsclient.StateOpen}},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantConn:   "open",
		},
		{
			name:       "reconnecting",
			status:     supervisor.Status{Client: &wsclient.Stats{State: wsclient.StateErrored}, LastError: "session heartbeat_timeout"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantConn:   "errored",
		},
		{
			name:       "not started",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantConn:   "connecting",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAdminHandler(&fakeSource{status: tt.status}, nil)

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.wantStatus, body["status"])
			assert.Equal(t, tt.wantConn, body["connection"])
		})
	}
}

func TestAdminHandler_GetStatus(t *testing.T) {
	next := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{status: supervisor.Status{
		Connections:   3,
		Attempt:       1,
		Breaker:       "closed",
		NextAttemptAt: &next,
		Client:        &wsclient.Stats{State: wsclient.StateOpen, Handled: 7},
		Endpoint:      &supervisor.EndpointStatus{ServiceID: 9, DeviceID: "dev"},
	}}
	h := NewAdminHandler(src, nil)

	w := httptest.NewRecorder()
	h.GetStatus(w, httptest.NewRequest(http.MethodGet, "/admin/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(3), body["connections"])
	assert.Equal(t, "closed", body["breaker"])
	client := body["client"].(map[string]interface{})
	assert.Equal(t, "open", client["state"])
	assert.Equal(t, float64(7), client["handled"])
	endpoint := body["endpoint"].(map[string]interface{})
	assert.Equal(t, float64(9), endpoint["service_id"])
}

func TestAdminHandler_GetConfig(t *testing.T) {
	cfg := &config.Config{
		App:  config.AppConfig{ID: "cli_a", Secret: "super-secret", Domain: "https://open.feishu.cn"},
		Sink: config.SinkConfig{Enabled: true, Addr: "redis:6379", Password: "redis-pass"},
	}
	h := NewAdminHandler(&fakeSource{}, cfg)

	w := httptest.NewRecorder()
	h.GetConfig(w, httptest.NewRequest(http.MethodGet, "/admin/config", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cli_a")
	assert.NotContains(t, w.Body.String(), "super-secret")
	assert.NotContains(t, w.Body.String(), "redis-pass")
}

func TestAdminHandler_GetConfig_Missing(t *testing.T) {
	h := NewAdminHandler(&fakeSource{}, nil)

	w := httptest.NewRecorder()
	h.GetConfig(w, httptest.NewRequest(http.MethodGet, "/admin/config", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_Shutdown(t *testing.T) {
	src := &fakeSource{}
	h := NewAdminHandler(src, nil)

	w := httptest.NewRecorder()
	h.Shutdown(w, httptest.NewRequest(http.MethodPost, "/admin/shutdown", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, src.closed)
}
