package wsclient

import (
	"context"
	"sync"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/pkg/frame"
)

// job is one handler invocation. run returns the response frame, or nil
// when there is nothing to send.
type job struct {
	seq uint64
	run func(ctx context.Context) *frame.Frame
}

type result struct {
	seq  uint64
	resp *frame.Frame
}

// pool runs handler calls on a fixed number of goroutines. Responses pass
// through a single writer that releases them in submission order, so the
// outbound queue sees the same order as the serial dispatcher would produce.
type pool struct {
	size    int
	emit    func(*frame.Frame)
	jobs    chan job
	results chan result
	nextSeq uint64

	workersWg sync.WaitGroup
	writerWg  sync.WaitGroup
	stopOnce  sync.Once
}

func newPool(size int, emit func(*frame.Frame)) *pool {
	return &pool{
		size:    size,
		emit:    emit,
		jobs:    make(chan job),
		results: make(chan result, size),
	}
}

// Start spawns the workers and the ordered writer.
func (p *pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.workersWg.Add(1)
		go p.worker(ctx, i)
	}
	p.writerWg.Add(1)
	go p.writer()

	logger.Info().Int("workers", p.size).Msg("handler pool started")
}

// Submit hands fn to a free worker, blocking while all of them are busy.
// It must be called from a single goroutine.
func (p *pool) Submit(ctx context.Context, fn func(ctx context.Context) *frame.Frame) {
	seq := p.nextSeq
	p.nextSeq++

	select {
	case p.jobs <- job{seq: seq, run: fn}:
	case <-ctx.Done():
		// Keep the sequence gap-free so the writer does not stall.
		p.results <- result{seq: seq}
	}
}

// Stop waits for in-flight handlers and flushes their responses.
func (p *pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
		p.workersWg.Wait()
		close(p.results)
		p.writerWg.Wait()
		logger.Info().Msg("handler pool stopped")
	})
}

func (p *pool) worker(ctx context.Context, num int) {
	defer p.workersWg.Done()

	for j := range p.jobs {
		p.results <- result{seq: j.seq, resp: j.run(ctx)}
	}
	logger.Debug().Int("worker_num", num).Msg("handler worker exited")
}

func (p *pool) writer() {
	defer p.writerWg.Done()

	var next uint64
	pending := make(map[uint64]*frame.Frame)

	for r := range p.results {
		pending[r.seq] = r.resp
		for {
			resp, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			p.emit(resp)
		}
	}
}
