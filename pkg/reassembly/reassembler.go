// Package reassembly joins fragmented push messages back into a single
// payload.
//
// Fragments of one logical message share a message id and carry their index
// (seq) and the total fragment count (sum). Partial messages live for a fixed
// TTL after their first fragment and are then discarded, so lost fragments
// cannot grow memory without bound.
package reassembly

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
)

const (
	DefaultTTL        = 5 * time.Second
	DefaultMaxEntries = 1024
)

// Eviction reasons reported to metrics.
const (
	reasonTTL      = "ttl"
	reasonCapacity = "capacity"
	reasonReplaced = "replaced"
)

var ErrSeqOutOfRange = errors.New("fragment seq out of range")

type entry struct {
	parts    [][]byte
	filled   []bool
	received int
	created  time.Time
}

func (e *entry) complete() bool {
	return e.received == len(e.parts)
}

func (e *entry) join() []byte {
	n := 0
	for _, p := range e.parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range e.parts {
		out = append(out, p...)
	}
	return out
}

// Reassembler is a TTL-bounded cache of partially received messages.
// It is safe for concurrent use.
type Reassembler struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu        sync.Mutex
	entries   map[string]*entry
	evictions uint64
}

// Option configures a Reassembler.
type Option func(*Reassembler)

// WithTTL sets how long a partial message is kept after its first fragment.
func WithTTL(d time.Duration) Option {
	return func(r *Reassembler) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithMaxEntries caps the number of partial messages held at once.
func WithMaxEntries(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.maxEntries = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reassembler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Reassembler.
func New(opts ...Option) *Reassembler {
	r := &Reassembler{
		ttl:        DefaultTTL,
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnFragment stores one fragment. It returns the joined payload and true once
// every fragment of messageID has arrived. A message with sum <= 1 is already
// complete and is returned as is without touching the cache.
func (r *Reassembler) OnFragment(messageID string, sum, seq int, data []byte) ([]byte, bool, error) {
	if sum <= 1 {
		return data, true, nil
	}
	if seq < 0 || seq >= sum {
		return nil, false, ErrSeqOutOfRange
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	e, ok := r.entries[messageID]
	if ok && r.expired(e, now) {
		r.evict(messageID, reasonTTL)
		ok = false
	}
	if ok && len(e.parts) != sum {
		logger.Warn().
			Str("message_id", messageID).
			Int("sum", sum).
			Int("previous_sum", len(e.parts)).
			Msg("fragment sum changed, restarting message")
		r.evict(messageID, reasonReplaced)
		ok = false
	}
	if !ok {
		if len(r.entries) >= r.maxEntries {
			r.evictOldest()
		}
		e = &entry{
			parts:   make([][]byte, sum),
			filled:  make([]bool, sum),
			created: now,
		}
		r.entries[messageID] = e
	}

	// Last write wins for redelivered fragments.
	e.parts[seq] = data
	if !e.filled[seq] {
		e.filled[seq] = true
		e.received++
	}

	if !e.complete() {
		metrics.SetReassemblyEntries(float64(len(r.entries)))
		return nil, false, nil
	}

	delete(r.entries, messageID)
	metrics.SetReassemblyEntries(float64(len(r.entries)))
	return e.join(), true, nil
}

// Sweep drops every entry older than the TTL at now and returns how many
// were removed.
func (r *Reassembler) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if r.expired(e, now) {
			r.evict(id, reasonTTL)
			removed++
		}
	}
	if removed > 0 {
		metrics.SetReassemblyEntries(float64(len(r.entries)))
		logger.Debug().Int("removed", removed).Msg("swept expired fragments")
	}
	return removed
}

// Run sweeps on every interval tick until ctx is done.
func (r *Reassembler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = r.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Len returns the number of partial messages currently held.
func (r *Reassembler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evictions returns how many partial messages have been discarded.
func (r *Reassembler) Evictions() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictions
}

// TTL returns the configured entry lifetime.
func (r *Reassembler) TTL() time.Duration {
	return r.ttl
}

func (r *Reassembler) expired(e *entry, now time.Time) bool {
	return now.Sub(e.created) >= r.ttl
}

// evict must be called with mu held.
func (r *Reassembler) evict(id, reason string) {
	e := r.entries[id]
	delete(r.entries, id)
	r.evictions++
	metrics.RecordReassemblyEviction(reason)

	received := 0
	if e != nil {
		received = e.received
	}
	logger.Debug().
		Str("message_id", id).
		Str("reason", reason).
		Int("received", received).
		Msg("dropped incomplete message")
}

func (r *Reassembler) evictOldest() {
	var (
		oldestID string
		oldest   time.Time
		found    bool
	)
	for id, e := range r.entries {
		if !found || e.created.Before(oldest) {
			oldestID, oldest, found = id, e.created, true
		}
	}
	if found {
		r.evict(oldestID, reasonCapacity)
	}
}
