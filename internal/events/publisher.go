package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/pkg/wsclient"
)

// ErrPublishFailed wraps sink failures returned to the dispatcher.
var ErrPublishFailed = errors.New("event publish failed")

// UnknownEventType is used when a payload carries no recognizable type.
const UnknownEventType = "unknown"

// Event is a received push event as published to the sink.
type Event struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	MessageID  string          `json:"message_id,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// envelope covers both payload schemas: 2.0 carries the type in header,
// the legacy one in event.type with the id in uuid.
type envelope struct {
	Schema string `json:"schema"`
	Header *struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	} `json:"header"`
	UUID  string `json:"uuid"`
	Event *struct {
		Type string `json:"type"`
	} `json:"event"`
	Type string `json:"type"`
}

// NewEvent builds an Event from a handler payload. Payloads that are not
// JSON objects are kept as a JSON string under UnknownEventType.
func NewEvent(payload []byte) *Event {
	e := &Event{
		Type:       UnknownEventType,
		ReceivedAt: time.Now().UTC(),
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		raw, _ := json.Marshal(string(payload))
		e.Payload = raw
		return e
	}
	e.Payload = append(json.RawMessage(nil), payload...)

	switch {
	case env.Header != nil && env.Header.EventType != "":
		e.Type = env.Header.EventType
		e.EventID = env.Header.EventID
	case env.Event != nil && env.Event.Type != "":
		e.Type = env.Event.Type
		e.EventID = env.UUID
	case env.Type != "":
		e.Type = env.Type
		e.EventID = env.UUID
	}
	return e
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher receives every event handled by the client.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Handler publishes each payload and then passes it to next. A nil next
// acknowledges with no data. Publish failures are returned only when strict
// is set; otherwise they are logged and the event is still handled.
func Handler(pub Publisher, next wsclient.EventHandler, strict bool) wsclient.EventHandler {
	return wsclient.HandlerFunc(func(ctx context.Context, payload []byte) ([]byte, error) {
		event := NewEvent(payload)
		if info, ok := wsclient.MessageFromContext(ctx); ok {
			event.MessageID = info.MessageID
			event.TraceID = info.TraceID
		}

		if err := pub.Publish(ctx, event); err != nil {
			if strict {
				return nil, fmt.Errorf("%w: %w", ErrPublishFailed, err)
			}
			logger.Warn().
				Err(err).
				Str("event_type", event.Type).
				Str("message_id", event.MessageID).
				Msg("failed to publish event")
		}
		if next == nil {
			return nil, nil
		}
		return next.Handle(ctx, payload)
	})
}
