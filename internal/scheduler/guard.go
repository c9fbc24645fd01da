package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrGuardBusy is returned when another process holds the cycle guard.
var ErrGuardBusy = errors.New("cycle guard is held by another process")

// DefaultGuardTTL bounds how long a crashed holder can block other processes.
const DefaultGuardTTL = 30 * time.Minute

// Guard serialises cycles across processes sharing one store.
type Guard interface {
	// Acquire takes the guard or returns ErrGuardBusy. The returned release
	// function must be called once the cycle is done.
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

// Locker is the subset of *redis.Client the guard uses.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisGuard is a Guard backed by a Redis key set with NX and a TTL.
type RedisGuard struct {
	client Locker
	key    string
	ttl    time.Duration
}

// NewRedisGuard creates a guard on key. A non-positive ttl uses DefaultGuardTTL.
func NewRedisGuard(client Locker, key string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	return &RedisGuard{client: client, key: key, ttl: ttl}
}

// Acquire implements Guard.
func (g *RedisGuard) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire guard %s: %w", g.key, err)
	}
	if !ok {
		return nil, ErrGuardBusy
	}
	return func(ctx context.Context) error {
		if err := g.client.Eval(ctx, releaseScript, []string{g.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release guard %s: %w", g.key, err)
		}
		return nil
	}, nil
}
