package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisChannel = "subledger.events"

// RedisPublisher publishes each event as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{client: client, channel: channel, timeout: 5 * time.Second}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}
