package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxzool/open-lark-sub013/internal/config"
	"github.com/foxzool/open-lark-sub013/internal/logger"
	"github.com/foxzool/open-lark-sub013/internal/metrics"
)

// DefaultChannelPrefix prefixes every event channel.
const DefaultChannelPrefix = "larkws:events:"

// RedisClient is the subset of *redis.Client used by the sink.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
	Close() error
}

// RedisPubSub publishes events to Redis channels named {prefix}{event_type}.
type RedisPubSub struct {
	client  RedisClient
	prefix  string
	timeout time.Duration
}

// NewRedisPubSub creates a new Redis Pub/Sub publisher. A zero timeout
// leaves the caller's deadline in charge.
func NewRedisPubSub(client RedisClient, prefix string, timeout time.Duration) *RedisPubSub {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPubSub{
		client:  client,
		prefix:  prefix,
		timeout: timeout,
	}
}

// Publish publishes an event to Redis
func (r *RedisPubSub) Publish(ctx context.Context, event *Event) error {
	channel := r.channelName(event.Type)
	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		metrics.RecordRedisError("publish")
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.RecordRedisOperation("publish", time.Since(start).Seconds())

	logger.Debug().
		Str("event_type", event.Type).
		Str("message_id", event.MessageID).
		Str("channel", channel).
		Msg("event published")

	return nil
}

// SubscribeAll streams every event published under the prefix until ctx is
// done. Events are dropped when the consumer falls behind.
func (r *RedisPubSub) SubscribeAll(ctx context.Context) (<-chan *Event, error) {
	pattern := r.prefix + "*"
	pubsub := r.client.PSubscribe(ctx, pattern)

	// Wait for subscription confirmation
	_, err := pubsub.Receive(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	eventCh := make(chan *Event, 100)

	go func() {
		defer close(eventCh)
		defer pubsub.Close()
		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				event, err := FromJSON([]byte(msg.Payload))
				if err != nil {
					logger.Error().Err(err).Str("channel", msg.Channel).Msg("failed to parse event")
					continue
				}

				select {
				case eventCh <- event:
				default:
					logger.Warn().
						Str("event_type", event.Type).
						Msg("event channel full, dropping event")
				}
			}
		}
	}()

	return eventCh, nil
}

// Close closes the Redis client.
func (r *RedisPubSub) Close() error {
	return r.client.Close()
}

func (r *RedisPubSub) channelName(eventType string) string {
	return r.prefix + eventType
}

// LogPublisher logs events instead of publishing them. It is used when the
// Redis sink is disabled.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event *Event) error {
	logger.Info().
		Str("event_type", event.Type).
		Str("event_id", event.EventID).
		Str("message_id", event.MessageID).
		Str("trace_id", event.TraceID).
		Int("size", len(event.Payload)).
		Msg("event received")
	return nil
}

func (LogPublisher) Close() error {
	return nil
}

// NewPublisher returns a Redis publisher when the sink is enabled and a
// LogPublisher otherwise. The Redis connection is checked with PING.
func NewPublisher(ctx context.Context, cfg config.SinkConfig) (Publisher, error) {
	if !cfg.Enabled {
		return LogPublisher{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		metrics.RecordRedisError("ping")
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	metrics.RecordRedisOperation("ping", time.Since(start).Seconds())

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to redis event sink")
	return NewRedisPubSub(client, cfg.ChannelPrefix, cfg.PublishTimeout), nil
}
