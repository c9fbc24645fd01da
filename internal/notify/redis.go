package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of *redis.Client the Redis sink uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes one posting_batch event per batch on a pub/sub channel.
type Redis struct {
	client  Publisher
	channel string
	now     func() time.Time
}

// NewRedis creates a Redis sink over an existing client.
func NewRedis(client Publisher, channel string) *Redis {
	return &Redis{client: client, channel: channel, now: time.Now}
}

// Name implements Sink.
func (r *Redis) Name() string { return "redis" }

// Notify implements Sink.
func (r *Redis) Notify(ctx context.Context, postings []types.Posting) error {
	payload, err := EncodeBatchEvent(postings, r.now())
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel, err)
	}
	return nil
}

// ConnectRedis parses a redis:// URL and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
