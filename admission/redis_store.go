// redis_store.go implements a Redis-backed CounterStore for deployments that
// run more than one instance behind a load balancer.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces admission counters in a shared Redis.
const redisKeyPrefix = "imageforge:admission:"

// RedisStore is a CounterStore backed by Redis INCR with a window-length TTL.
//
// The first increment of a window sets the TTL; subsequent increments within
// the window inherit it, so all instances agree on when the window resets.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a CounterStore over an existing Redis client.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("admission: redis client cannot be nil")
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromAddr dials Redis at addr and verifies connectivity.
func NewRedisStoreFromAddr(ctx context.Context, addr string) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("admission: redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("admission: failed to connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// Incr registers one request for the key within the current window.
func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	redisKey := redisKeyPrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("admission: redis incr failed: %w", err)
	}

	// First request of the window owns setting the expiry
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("admission: redis pexpire failed: %w", err)
		}
		return int(count), window, nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("admission: redis pttl failed: %w", err)
	}
	if ttl < 0 {
		// Key exists without expiry (e.g. expiry lost during a failover):
		// restore it so the window still closes
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("admission: redis pexpire failed: %w", err)
		}
		ttl = window
	}

	return int(count), ttl, nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	type closer interface{ Close() error }
	if c, ok := s.client.(closer); ok {
		return c.Close()
	}
	return nil
}

// Ensure RedisStore implements CounterStore at compile time.
var _ CounterStore = (*RedisStore)(nil)
