package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis pub/sub channel carrying domain events to
// other service instances and external consumers.
const DefaultChannel = "dispatch.events"

// RedisBridge republishes every dispatcher event onto a Redis channel so
// consumers outside the process can re-query on change.
type RedisBridge struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBridge constructs the bridge.
func NewRedisBridge(client *redis.Client, channel string, logger *zap.Logger) *RedisBridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBridge{client: client, channel: channel, logger: logger}
}

// Register subscribes the bridge to all dispatcher events.
func (b *RedisBridge) Register(dispatcher Dispatcher) {
	if b == nil || dispatcher == nil {
		return
	}
	dispatcher.SubscribeAll(b.handle)
}

func (b *RedisBridge) handle(ctx context.Context, event Event) error {
	if b.client == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("marshal event for redis", zap.Error(err))
		return nil
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		// Event fan-out is best effort; local subscribers already ran.
		b.logger.Warn("publish event to redis", zap.String("channel", b.channel), zap.Error(err))
	}
	return nil
}
