package publish

import (
	"context"
	"log"

	"github.com/b-open-io/backplane/internal/utils"
	"github.com/redis/go-redis/v9"
)

type RedisPublish struct {
	DB *redis.Client
}

// NewRedisPublish creates a Redis publisher
func NewRedisPublish(connString string) (*RedisPublish, error) {
	log.Println("Connecting to Redis Publisher...", utils.SanitizeConnectionString(connString))
	opts, err := redis.ParseURL(connString)
	if err != nil {
		return nil, err
	}
	return &RedisPublish{DB: redis.NewClient(opts)}, nil
}

// NewRedisPublishFromClient creates a publisher on an existing client.
func NewRedisPublishFromClient(client *redis.Client) *RedisPublish {
	return &RedisPublish{DB: client}
}

// Publish sends payload to channel with PUBLISH.
func (r *RedisPublish) Publish(ctx context.Context, channel, payload string) (int, error) {
	n, err := r.DB.Publish(ctx, channel, payload).Result()
	return int(n), err
}

func (r *RedisPublish) Close() error {
	return r.DB.Close()
}
