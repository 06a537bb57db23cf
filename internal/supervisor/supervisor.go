// Package supervisor keeps a push connection alive. It runs one
// wsclient.Client per connection and reconnects according to the server's
// reconnect policy, behind a circuit breaker.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
	"github.com/foxzool/open-lark-sub013/pkg/wsclient"
)

// Error definitions
var (
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrAlreadyRunning   = errors.New("supervisor already running")
)

const defaultFallbackInterval = 2 * time.Minute

// Factory creates the client for one connection. opts carry the config
// learned from the previous connection.
type Factory func(opts ...wsclient.Option) *wsclient.Client

// Status is a point-in-time view of the supervisor.
type Status struct {
	Connections   int                    `json:"connections"`
	Attempt       int                    `json:"attempt"`
	Breaker       string                 `json:"breaker"`
	LastError     string                 `json:"last_error,omitempty"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
	Client        *wsclient.Stats        `json:"client,omitempty"`
	Endpoint      *EndpointStatus        `json:"endpoint,omitempty"`
	Config        *wsclient.ClientConfig `json:"client_config,omitempty"`
}

// EndpointStatus describes the negotiated endpoint without its URL, which
// carries access tickets.
type EndpointStatus struct {
	ServiceID int32  `json:"service_id"`
	DeviceID  string `json:"device_id"`
}

// Supervisor runs clients until it is closed, ctx is done or the reconnect
// policy gives up.
type Supervisor struct {
	cfg     config.SupervisorConfig
	factory Factory
	breaker *gobreaker.CircuitBreaker[struct{}]

	mu          sync.RWMutex
	current     *wsclient.Client
	connections int
	attempt     int
	lastErr     error
	nextAt      time.Time
	running     bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Supervisor.
func New(cfg config.SupervisorConfig, factory Factory) *Supervisor {
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = defaultFallbackInterval
	}
	return &Supervisor{
		cfg:     cfg,
		factory: factory,
		breaker: newBreaker("push-connect", cfg.BreakerMaxFailures, cfg.BreakerTimeout),
		closed:  make(chan struct{}),
	}
}

// Run connects and reconnects until ctx is done or Close is called, which
// return nil. It returns an error when a failure is not retryable or the
// reconnect policy is exhausted.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	var seed *wsclient.ClientConfig
	attempt := 0

	for {
		if s.stopped(ctx) {
			return nil
		}

		var opts []wsclient.Option
		if seed != nil {
			opts = append(opts, wsclient.WithClientConfig(*seed))
		}
		client := s.factory(opts...)
		s.setCurrent(client)

		_, err := s.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, client.Run(ctx)
		})

		cfg := client.ClientConfig()
		seed = &cfg

		if err == nil || s.stopped(ctx) {
			logger.Info().Msg("supervisor stopped")
			return nil
		}

		log := logger.WithComponent("supervisor")
		var nerr *wsclient.NegotiationError
		if errors.As(err, &nerr) && !nerr.Retryable() {
			log.Error().Err(err).Msg("connection failed permanently")
			s.recordFailure(err, attempt, time.Time{})
			return err
		}

		if isBreakerOpen(err) {
			// Not an attempt: nothing was sent.
			delay := s.breakerDelay()
			s.recordFailure(err, attempt, time.Now().Add(delay))
			log.Warn().Dur("delay", delay).Msg("circuit open, holding reconnects")
			if !s.wait(ctx, delay) {
				return nil
			}
			continue
		}
		if !isConnectFailure(err) {
			// The connection was up; start a fresh reconnect cycle.
			attempt = 0
		}

		policy := s.policy(cfg)
		if policy.Exhausted(attempt) {
			log.Error().Err(err).Int("attempts", attempt).Msg("giving up reconnecting")
			s.recordFailure(err, attempt, time.Time{})
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		delay := policy.Delay(attempt, nil)
		next := time.Now().Add(delay)
		s.recordFailure(err, attempt+1, next)

		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", policy.MaxAttempts).
			Dur("delay", delay).
			Str("breaker", s.breaker.State().String()).
			Msg("connection lost, reconnecting")

		if !s.wait(ctx, delay) {
			return nil
		}
		attempt++
		metrics.IncrementReconnects()
	}
}

// policy applies the local overrides to the server's advice.
func (s *Supervisor) policy(cfg wsclient.ClientConfig) wsclient.ReconnectPolicy {
	p := cfg.ReconnectPolicy()
	if s.cfg.MaxAttempts != 0 {
		p.MaxAttempts = s.cfg.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = s.cfg.FallbackInterval
	}
	return p
}

func (s *Supervisor) breakerDelay() time.Duration {
	if s.cfg.BreakerTimeout > 0 {
		return s.cfg.BreakerTimeout
	}
	return defaultBreakerTimeout
}

// Close stops reconnecting and closes the current connection gracefully.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		if c := s.Client(); c != nil {
			c.Close()
		}
	})
}

// Client returns the client of the current or last connection.
func (s *Supervisor) Client() *wsclient.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Status returns the supervisor's view of the connection.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	st := Status{
		Connections: s.connections,
		Attempt:     s.attempt,
		Breaker:     s.breaker.State().String(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if !s.nextAt.IsZero() {
		next := s.nextAt
		st.NextAttemptAt = &next
	}
	client := s.current
	s.mu.RUnlock()

	if client != nil {
		stats := client.Stats()
		st.Client = &stats
		cfg := client.ClientConfig()
		st.Config = &cfg
		if ep := client.Endpoint(); ep != nil {
			st.Endpoint = &EndpointStatus{ServiceID: ep.ServiceID, DeviceID: ep.DeviceID}
		}
	}
	return st
}

func (s *Supervisor) setCurrent(c *wsclient.Client) {
	s.mu.Lock()
	s.current = c
	s.connections++
	s.nextAt = time.Time{}
	s.mu.Unlock()

	// Close may have run between the stop check and here.
	select {
	case <-s.closed:
		c.Close()
	default:
	}
}

func (s *Supervisor) recordFailure(err error, attempt int, next time.Time) {
	s.mu.Lock()
	s.lastErr = err
	s.attempt = attempt
	s.nextAt = next
	s.mu.Unlock()
}

func (s *Supervisor) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !s.stopped(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closed:
		return false
	}
}
