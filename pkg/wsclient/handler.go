package wsclient

import (
	"context"

	"github.com/foxzool/open-lark-sub013/pkg/frame"
)

// EventHandler processes one complete event payload. The returned data, if
// any, is sent back to the server inside the success envelope.
type EventHandler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// Strategy decides what the dispatcher does with a message type.
type Strategy int

const (
	// StrategyIgnore drops the message without a response.
	StrategyIgnore Strategy = iota
	// StrategyHandle invokes the route's handler and responds.
	StrategyHandle
)

func (s Strategy) String() string {
	switch s {
	case StrategyIgnore:
		return "ignore"
	case StrategyHandle:
		return "handle"
	default:
		return "unknown"
	}
}

// Route binds a message type to a strategy. A nil Handler on a handle route
// falls back to the client's handler.
type Route struct {
	Strategy Strategy
	Handler  EventHandler
}

// WsEvent is an element of the inbound queue: a data frame, or the terminal
// error of the session.
type WsEvent struct {
	Frame *frame.Frame
	Err   error
}

// MessageInfo identifies the message a handler is processing.
type MessageInfo struct {
	MessageID string
	TraceID   string
	Type      string
}

type messageInfoKey struct{}

func withMessageInfo(ctx context.Context, info MessageInfo) context.Context {
	return context.WithValue(ctx, messageInfoKey{}, info)
}

// MessageFromContext returns the message being handled. It is set on the
// context passed to EventHandler.Handle.
func MessageFromContext(ctx context.Context) (MessageInfo, bool) {
	info, ok := ctx.Value(messageInfoKey{}).(MessageInfo)
	return info, ok
}
