package wsclient

import (
	"encoding/json"
	"sync"
	"time"
)

// Defaults used until the server sends its own values.
const (
	DefaultReconnectCount    = -1
	DefaultReconnectInterval = 120
	DefaultReconnectNonce    = 30
	DefaultPingInterval      = 120
)

// ClientConfig holds the tuning parameters negotiated with the server.
// Intervals are in seconds.
type ClientConfig struct {
	ReconnectCount    int `json:"ReconnectCount"`
	ReconnectInterval int `json:"ReconnectInterval"`
	ReconnectNonce    int `json:"ReconnectNonce"`
	PingInterval      int `json:"PingInterval"`
}

// DefaultClientConfig returns the values in effect before negotiation.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectCount:    DefaultReconnectCount,
		ReconnectInterval: DefaultReconnectInterval,
		ReconnectNonce:    DefaultReconnectNonce,
		PingInterval:      DefaultPingInterval,
	}
}

// PingPeriod returns the heartbeat period, falling back to the default when
// the server sent a non-positive interval.
func (c ClientConfig) PingPeriod() time.Duration {
	if c.PingInterval <= 0 {
		return DefaultPingInterval * time.Second
	}
	return time.Duration(c.PingInterval) * time.Second
}

// configHolder is the single mutable copy of the ClientConfig shared by the
// session (writer) and the owner (readers).
type configHolder struct {
	mu  sync.RWMutex
	cfg ClientConfig
}

func newConfigHolder(cfg ClientConfig) *configHolder {
	return &configHolder{cfg: cfg}
}

func (h *configHolder) Load() ClientConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *configHolder) Store(cfg ClientConfig) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

// Merge applies a JSON config update on top of the current values. Fields
// missing from data keep their value. It returns the previous and the new
// config.
func (h *configHolder) Merge(data []byte) (ClientConfig, ClientConfig, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.cfg
	next := prev
	if err := json.Unmarshal(data, &next); err != nil {
		return prev, prev, err
	}
	h.cfg = next
	return prev, next, nil
}
