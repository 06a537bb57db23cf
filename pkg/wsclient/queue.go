package wsclient

import (
	"context"
	"sync"

	"github.com/foxzool/open-lark-sub013/internal/metrics"
)

// Queue is an unbounded FIFO connecting the session and the dispatcher.
// The push protocol has no backpressure signal, so producers never block;
// the depth is exported as a gauge instead.
type Queue[T any] struct {
	name   string
	mu     sync.Mutex
	items  []T
	closed bool
	notify chan struct{}
	done   chan struct{}
}

// NewQueue creates a queue whose depth is reported under name.
func NewQueue[T any](name string) *Queue[T] {
	return &Queue[T]{
		name:   name,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends v. It fails with ErrQueueClosed after Close.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, v)
	depth := len(q.items)
	q.mu.Unlock()

	metrics.UpdateQueueDepth(q.name, float64(depth))
	q.wake()
	return nil
}

// TryPop removes the oldest item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	var zero T
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	depth := len(q.items)
	if depth == 0 {
		q.items = nil
	}
	q.mu.Unlock()

	metrics.UpdateQueueDepth(q.name, float64(depth))
	if depth > 0 {
		// Pass the wakeup on to another waiting consumer.
		q.wake()
	}
	return v, true
}

// Pop blocks until an item is available. Items pushed before Close are still
// returned; once the queue is closed and empty it returns ErrQueueClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		if q.Closed() {
			if v, ok := q.TryPop(); ok {
				return v, nil
			}
			var zero T
			return zero, ErrQueueClosed
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close stops further pushes. It is safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Signal returns a channel that receives a value after Push or Close. A
// single consumer can select on it and drain with TryPop.
func (q *Queue[T]) Signal() <-chan struct{} {
	return q.notify
}

// Name returns the metrics label of the queue.
func (q *Queue[T]) Name() string {
	return q.name
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
