package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans messages out over Redis pub/sub so every API instance
// and websocket gateway sees them.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	b, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, topic, b).Err()
}
