package wsclient

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foxzool/open-lark-sub013/pkg/frame"
	"github.com/foxzool/open-lark-sub013/pkg/reassembly"
)

// Defaults for the session and dispatcher.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultHeartbeatTimeout = 120 * time.Second
	DefaultLivenessInterval = 1 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
)

// Option configures the Client.
type Option func(*options)

type options struct {
	httpClient       *http.Client
	domain           string
	tokens           TokenSource
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	heartbeatTimeout time.Duration
	livenessInterval time.Duration
	writeTimeout     time.Duration
	drainTimeout     time.Duration
	skipMalformed    bool

	reassembler          *reassembly.Reassembler
	reassemblyTTL        time.Duration
	reassemblyMaxEntries int

	workers         int
	routes          map[string]Route
	defaultStrategy Strategy

	clientConfig *ClientConfig
}

func defaultOptions() *options {
	return &options{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		domain:               FeishuDomain,
		handshakeTimeout:     DefaultHandshakeTimeout,
		heartbeatTimeout:     DefaultHeartbeatTimeout,
		livenessInterval:     DefaultLivenessInterval,
		writeTimeout:         DefaultWriteTimeout,
		drainTimeout:         DefaultDrainTimeout,
		reassemblyTTL:        reassembly.DefaultTTL,
		reassemblyMaxEntries: reassembly.DefaultMaxEntries,
		workers:              1,
		routes: map[string]Route{
			frame.TypeEvent: {Strategy: StrategyHandle},
			frame.TypeCard:  {Strategy: StrategyIgnore},
		},
		defaultStrategy: StrategyIgnore,
	}
}

// WithHTTPClient sets the client used for endpoint negotiation.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithDomain sets the open platform base URL, e.g. LarkDomain.
func WithDomain(domain string) Option {
	return func(o *options) {
		o.domain = domain
	}
}

// WithTokenSource attaches a bearer token to the negotiation request.
func WithTokenSource(tokens TokenSource) Option {
	return func(o *options) {
		o.tokens = tokens
	}
}

// WithDialer replaces the WebSocket dialer. Its HandshakeTimeout wins over
// WithHandshakeTimeout when set.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithHeartbeatTimeout sets the liveness window: the session fails when no
// inbound traffic arrives for longer than d.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.heartbeatTimeout = d
		}
	}
}

// WithLivenessInterval sets how often the liveness window is checked.
func WithLivenessInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.livenessInterval = d
		}
	}
}

// WithWriteTimeout sets the deadline for writing one frame.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithDrainTimeout bounds how long Run waits for in-flight handlers after
// the session has ended. Handlers still running after that are left behind
// and their responses dropped.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.drainTimeout = d
		}
	}
}

// WithSkipMalformedFrames logs and drops undecodable frames instead of
// failing the session.
func WithSkipMalformedFrames(skip bool) Option {
	return func(o *options) {
		o.skipMalformed = skip
	}
}

// WithReassembler injects a shared reassembly cache. TTL and size options
// are ignored when set.
func WithReassembler(r *reassembly.Reassembler) Option {
	return func(o *options) {
		o.reassembler = r
	}
}

// WithReassemblyTTL sets how long partial messages are kept.
func WithReassemblyTTL(d time.Duration) Option {
	return func(o *options) {
		o.reassemblyTTL = d
	}
}

// WithReassemblyMaxEntries caps the number of partial messages.
func WithReassemblyMaxEntries(n int) Option {
	return func(o *options) {
		o.reassemblyMaxEntries = n
	}
}

// WithWorkers runs handlers on n goroutines. Responses are still written in
// arrival order. n <= 1 keeps handling serial.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.workers = n
	}
}

// WithRoute sets the strategy for a message type.
func WithRoute(msgType string, route Route) Option {
	return func(o *options) {
		o.routes[msgType] = route
	}
}

// WithDefaultStrategy sets the strategy for types without a route.
func WithDefaultStrategy(s Strategy) Option {
	return func(o *options) {
		o.defaultStrategy = s
	}
}

// WithClientConfig seeds the config used before the server sends its own,
// e.g. the config of a previous connection.
func WithClientConfig(cfg ClientConfig) Option {
	return func(o *options) {
		o.clientConfig = &cfg
	}
}

func (o *options) newDialer() *websocket.Dialer {
	if o.dialer != nil {
		d := *o.dialer
		if d.HandshakeTimeout == 0 {
			d.HandshakeTimeout = o.handshakeTimeout
		}
		return &d
	}
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: o.handshakeTimeout,
	}
}
