package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
	"github.com/foxzool/open-lark-sub013/internal/tracer"
	"github.com/foxzool/open-lark-sub013/pkg/frame"
	"github.com/foxzool/open-lark-sub013/pkg/reassembly"
)

// Error definitions
var (
	ErrHandlerNotFound = errors.New("no handler for message type")
	ErrHandlerPanicked = errors.New("handler panicked")
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// responseEnvelope is the payload of a response frame. Data carries the
// handler's return value and is omitted when the handler returned none.
type responseEnvelope struct {
	Code int    `json:"code"`
	Data []byte `json:"data,omitempty"`
}

type dispatchStats struct {
	handled atomic.Uint64
	failed  atomic.Uint64
	ignored atomic.Uint64
	dropped atomic.Uint64
}

// dispatcher consumes the inbound queue, reassembles fragments, runs the
// handler and queues one correlated response per handled message.
type dispatcher struct {
	inbound         *Queue[WsEvent]
	outbound        *Queue[*frame.Frame]
	reasm           *reassembly.Reassembler
	handler         EventHandler
	routes          map[string]Route
	defaultStrategy Strategy
	workers         int
	stats           dispatchStats
}

func newDispatcher(inbound *Queue[WsEvent], outbound *Queue[*frame.Frame], reasm *reassembly.Reassembler, handler EventHandler, opts *options) *dispatcher {
	routes := make(map[string]Route, len(opts.routes))
	for k, v := range opts.routes {
		routes[k] = v
	}
	return &dispatcher{
		inbound:         inbound,
		outbound:        outbound,
		reasm:           reasm,
		handler:         handler,
		routes:          routes,
		defaultStrategy: opts.defaultStrategy,
		workers:         opts.workers,
	}
}

// run processes inbound events until the queue is closed or ctx is done.
// It returns the session's terminal error when one arrives.
func (d *dispatcher) run(ctx context.Context) error {
	var p *pool
	if d.workers > 1 {
		p = newPool(d.workers, d.emit)
		p.Start(ctx)
		defer p.Stop()
	}

	for {
		ev, err := d.inbound.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ev.Err != nil {
			return ev.Err
		}
		if ev.Frame != nil {
			d.dispatch(ctx, ev.Frame, p)
		}
	}
}

func (d *dispatcher) route(msgType string) Route {
	if r, ok := d.routes[msgType]; ok {
		return r
	}
	return Route{Strategy: d.defaultStrategy}
}

func (d *dispatcher) dispatch(ctx context.Context, f *frame.Frame, p *pool) {
	msgType := f.Headers.Type()
	messageID := f.Headers.MessageID()

	route := d.route(msgType)
	if route.Strategy != StrategyHandle {
		d.stats.ignored.Add(1)
		metrics.RecordFrameIgnored(msgType)
		logger.Debug().
			Str("message_type", msgType).
			Str("message_id", messageID).
			Msg("no response for message type")
		return
	}

	payload := f.Payload
	if sum := f.Headers.Sum(); sum > 1 {
		out, done, err := d.reasm.OnFragment(messageID, sum, f.Headers.Seq(), f.Payload)
		if err != nil {
			d.stats.dropped.Add(1)
			logger.Warn().
				Err(err).
				Str("message_id", messageID).
				Int("sum", sum).
				Int("seq", f.Headers.Seq()).
				Msg("fragment rejected")
			return
		}
		if !done {
			return
		}
		payload = out
	}

	handler := route.Handler
	if handler == nil {
		handler = d.handler
	}

	if p != nil {
		p.Submit(ctx, func(ctx context.Context) *frame.Frame {
			return d.invoke(ctx, handler, f, payload)
		})
		return
	}
	d.emit(d.invoke(ctx, handler, f, payload))
}

// invoke runs the handler and builds the response frame. Handler errors and
// panics become a failure response.
func (d *dispatcher) invoke(ctx context.Context, h EventHandler, f *frame.Frame, payload []byte) *frame.Frame {
	msgType := f.Headers.Type()
	messageID := f.Headers.MessageID()
	traceID := f.Headers.TraceID()

	ctx, span := tracer.StartSpan(ctx, "wsclient.handle", trace.WithAttributes(
		tracer.StringAttr("message_id", messageID),
		tracer.StringAttr("trace_id", traceID),
		tracer.StringAttr("message_type", msgType),
		tracer.IntAttr("payload_size", len(payload)),
	))
	defer span.End()
	ctx = withMessageInfo(ctx, MessageInfo{MessageID: messageID, TraceID: traceID, Type: msgType})

	log := logger.WithMessage(messageID)
	log.Debug().Str("message_type", msgType).Int("size", len(payload)).Msg("handling event")

	start := time.Now()
	data, err := safeHandle(ctx, h, payload)
	elapsed := time.Since(start)

	if err != nil {
		d.stats.failed.Add(1)
		metrics.RecordHandler(msgType, statusFailure, elapsed.Seconds())
		tracer.RecordError(span, err)
		log.Error().
			Err(err).
			Str("message_type", msgType).
			Str("trace_id", traceID).
			Dur("duration", elapsed).
			Msg("event handler failed")
		return newResponse(f, http.StatusInternalServerError, nil, 0, false)
	}

	d.stats.handled.Add(1)
	metrics.RecordHandler(msgType, statusSuccess, elapsed.Seconds())
	tracer.SetOK(span)
	log.Debug().Dur("duration", elapsed).Msg("event handled")
	return newResponse(f, http.StatusOK, data, elapsed.Milliseconds(), true)
}

func safeHandle(ctx context.Context, h EventHandler, payload []byte) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("event handler panicked")
			data = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
		}
	}()

	if h == nil {
		return nil, ErrHandlerNotFound
	}
	return h.Handle(ctx, payload)
}

// newResponse copies the request frame, keeping its headers for
// correlation, and replaces the payload with the status envelope.
func newResponse(req *frame.Frame, code int, data []byte, bizRT int64, withBizRT bool) *frame.Frame {
	resp := req.Clone()
	if withBizRT {
		resp.Headers.SetBizRT(bizRT)
	}
	resp.Payload, _ = json.Marshal(responseEnvelope{Code: code, Data: data})
	return resp
}

func (d *dispatcher) emit(resp *frame.Frame) {
	if resp == nil {
		return
	}
	if err := d.outbound.Push(resp); err != nil {
		d.stats.dropped.Add(1)
		logger.Debug().
			Str("message_id", resp.Headers.MessageID()).
			Msg("outbound closed, response dropped")
	}
}
