package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel history records travel on.
const DefaultChannel = "history:records"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher hands records to the history recorder over Redis Pub/Sub.
type Publisher struct {
	redis   redisPublisher
	channel string
}

// NewPublisher publishes onto channel, DefaultChannel when empty.
func NewPublisher(redis redisPublisher, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{redis: redis, channel: channel}
}

// Record publishes rec. Delivery is best-effort.
func (p *Publisher) Record(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode history record: %w", err)
	}
	if err := p.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish history record: %w", err)
	}
	return nil
}
