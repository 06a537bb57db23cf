package supervisor

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
	"github.com/foxzool/open-lark-sub013/pkg/wsclient"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 60 * time.Second
)

// newBreaker trips after maxFailures consecutive failed connection
// attempts. A connection that opened and later dropped counts as a success:
// the service was reachable.
func newBreaker(name string, maxFailures uint32, timeout time.Duration) *gobreaker.CircuitBreaker[struct{}] {
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(float64(to))
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return !isConnectFailure(err)
		},
	})
}

// isConnectFailure reports whether err happened before a connection was
// established.
func isConnectFailure(err error) bool {
	if err == nil {
		return false
	}
	var nerr *wsclient.NegotiationError
	if errors.As(err, &nerr) {
		return true
	}
	var serr *wsclient.SessionError
	if errors.As(err, &serr) {
		return serr.Cause == wsclient.CauseConnect
	}
	return false
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
