package wsclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/pkg/frame"
	"github.com/foxzool/open-lark-sub013/pkg/reassembly"
)

// Queue names used as metric labels.
const (
	InboundQueueName  = "inbound"
	OutboundQueueName = "outbound"
)

// Stats is a point-in-time view of a client.
type Stats struct {
	State             State     `json:"state"`
	ConnID            string    `json:"conn_id,omitempty"`
	ServiceID         int32     `json:"service_id,omitempty"`
	LastActivity      time.Time `json:"last_activity,omitempty"`
	InboundDepth      int       `json:"inbound_depth"`
	OutboundDepth     int       `json:"outbound_depth"`
	ReassemblyEntries int       `json:"reassembly_entries"`
	ReassemblyEvicted uint64    `json:"reassembly_evicted"`
	Handled           uint64    `json:"handled"`
	Failed            uint64    `json:"failed"`
	Ignored           uint64    `json:"ignored"`
	Dropped           uint64    `json:"dropped"`
}

// Client runs one connection lifetime against the push service: negotiate,
// dial, then serve events until the connection ends. It never reconnects;
// create a new Client for the next connection.
type Client struct {
	handler    EventHandler
	opts       *options
	negotiator *Negotiator
	config     *configHolder
	reasm      *reassembly.Reassembler
	inbound    *Queue[WsEvent]
	outbound   *Queue[*frame.Frame]
	started    atomic.Bool

	mu       sync.RWMutex
	endpoint *Endpoint
	sess     *session
	disp     *dispatcher
	state    State
}

// New creates a Client. handler receives every complete event payload.
func New(appID, appSecret string, handler EventHandler, opts ...Option) *Client {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	cfg := DefaultClientConfig()
	if o.clientConfig != nil {
		cfg = *o.clientConfig
	}

	reasm := o.reassembler
	if reasm == nil {
		reasm = reassembly.New(
			reassembly.WithTTL(o.reassemblyTTL),
			reassembly.WithMaxEntries(o.reassemblyMaxEntries),
		)
	}

	c := &Client{
		handler:    handler,
		opts:       o,
		negotiator: NewNegotiator(o.domain, appID, appSecret, o.httpClient, o.tokens),
		config:     newConfigHolder(cfg),
		reasm:      reasm,
		inbound:    NewQueue[WsEvent](InboundQueueName),
		outbound:   NewQueue[*frame.Frame](OutboundQueueName),
		state:      StateConnecting,
	}
	c.disp = newDispatcher(c.inbound, c.outbound, c.reasm, handler, o)
	return c
}

// Run negotiates an endpoint, connects and serves events. It returns nil
// after a graceful close (ctx done or Close called) and the terminal error
// otherwise: a *NegotiationError before connecting, a *SessionError after.
func (c *Client) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ep, err := c.negotiator.Negotiate(ctx)
	if err != nil {
		c.setState(StateErrored)
		return err
	}
	// Keep a seeded config when the server has nothing newer.
	if ep.HasConfig {
		c.config.Store(ep.ClientConfig)
	}

	c.mu.Lock()
	c.endpoint = ep
	c.mu.Unlock()

	sess, err := dialSession(ctx, ep, c.config, c.inbound, c.outbound, c.opts)
	if err != nil {
		c.setState(StateErrored)
		return err
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	log := logger.WithConnection(sess.ID())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.opts.reassembler == nil {
		go c.reasm.Run(runCtx, c.reasm.TTL())
	}

	dispDone := make(chan error, 1)
	go func() {
		dispDone <- c.disp.run(runCtx)
	}()

	sessErr := sess.run(ctx)

	// The socket is gone; responses can no longer be delivered.
	cancel()
	drain := time.NewTimer(c.opts.drainTimeout)
	defer drain.Stop()
	select {
	case derr := <-dispDone:
		if derr != nil && derr != sessErr {
			log.Debug().Err(derr).Msg("dispatcher stopped")
		}
	case <-drain.C:
		log.Warn().
			Dur("drain_timeout", c.opts.drainTimeout).
			Msg("handlers still running after session ended, detaching dispatcher")
	}

	c.setState(sess.State())
	return sessErr
}

// Close asks the session to flush queued responses and close the connection
// gracefully. Run then returns nil.
func (c *Client) Close() {
	c.outbound.Close()
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess != nil {
		return c.sess.State()
	}
	return c.state
}

// ClientConfig returns the current negotiated config, including updates
// received in pong frames.
func (c *Client) ClientConfig() ClientConfig {
	return c.config.Load()
}

// ReconnectPolicy returns the server's reconnect advice.
func (c *Client) ReconnectPolicy() ReconnectPolicy {
	return c.config.Load().ReconnectPolicy()
}

// Endpoint returns the negotiated endpoint, or nil before negotiation.
func (c *Client) Endpoint() *Endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.endpoint == nil {
		return nil
	}
	ep := *c.endpoint
	return &ep
}

// Stats returns counters and queue depths.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	sess := c.sess
	state := c.state
	c.mu.RUnlock()

	st := Stats{
		State:             state,
		InboundDepth:      c.inbound.Len(),
		OutboundDepth:     c.outbound.Len(),
		ReassemblyEntries: c.reasm.Len(),
		ReassemblyEvicted: c.reasm.Evictions(),
		Handled:           c.disp.stats.handled.Load(),
		Failed:            c.disp.stats.failed.Load(),
		Ignored:           c.disp.stats.ignored.Load(),
		Dropped:           c.disp.stats.dropped.Load(),
	}
	if sess != nil {
		st.State = sess.State()
		st.ConnID = sess.ID()
		st.ServiceID = sess.endpoint.ServiceID
		st.LastActivity = sess.LastActivity()
	}
	return st
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
