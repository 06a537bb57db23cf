package wsclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue[int]("test_fifo")

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueue_PushAfterClose(t *testing.T) {
	q := NewQueue[string]("test_closed")
	require.NoError(t, q.Push("a"))
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Push("b"), ErrQueueClosed)

	// Items queued before Close are still delivered.
	v, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue[int]("test_block")

	got := make(chan int, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Push(42))

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_PopContextCanceled(t *testing.T) {
	q := NewQueue[int]("test_ctx")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CloseWakesAllConsumers(t *testing.T) {
	q := NewQueue[int]("test_wake")

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}

func TestQueue_ManyConsumersDrainEverything(t *testing.T) {
	q := NewQueue[int]("test_many")
	const n = 1000

	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Pop(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(i))
	}
	q.Close()
	wg.Wait()

	assert.Len(t, seen, n)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_Signal(t *testing.T) {
	q := NewQueue[int]("test_signal")
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))

	select {
	case <-q.Signal():
	default:
		t.Fatal("expected a pending signal after Push")
	}

	q.Close()
	select {
	case <-q.Signal():
	case <-time.After(time.Second):
		t.Fatal("expected a signal after Close")
	}
	assert.Equal(t, "test_signal", q.Name())
}
