package wsclient

import (
	"math/rand/v2"
	"time"
)

// ReconnectPolicy is the server's advice on how to reconnect after a session
// ends. The client never reconnects on its own; a supervising loop reads the
// policy and decides.
type ReconnectPolicy struct {
	// MaxAttempts is the number of reconnects allowed. Negative means
	// unlimited.
	MaxAttempts int
	Interval    time.Duration
	// Nonce bounds the random delay before the first attempt so that many
	// clients do not reconnect at the same instant.
	Nonce time.Duration
}

// ReconnectPolicy extracts the reconnect advice from the config.
func (c ClientConfig) ReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: c.ReconnectCount,
		Interval:    time.Duration(c.ReconnectInterval) * time.Second,
		Nonce:       time.Duration(c.ReconnectNonce) * time.Second,
	}
}

// Delay returns how long to wait before the given zero-based attempt.
// rnd may be nil.
func (p ReconnectPolicy) Delay(attempt int, rnd *rand.Rand) time.Duration {
	if attempt > 0 {
		return p.Interval
	}
	if p.Nonce <= 0 {
		return 0
	}
	if rnd == nil {
		return time.Duration(rand.Int64N(int64(p.Nonce)))
	}
	return time.Duration(rnd.Int64N(int64(p.Nonce)))
}

// Exhausted reports whether attempt is beyond the allowed count.
func (p ReconnectPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts >= 0 && attempt >= p.MaxAttempts
}
