package recache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is a Backend implementation over go-redis/v9, grounded on
// Keksclan-goRawrSquirrel's cache/redis.go L2 adapter: reads fail soft (a
// connection error is reported as a miss, never surfaced as an error) so a
// degraded Redis does not take down reads through RemoteStore.
type RedisBackend struct {
	rdb *redis.Client
}

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend creates a RedisBackend over an existing client.
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

// Get retrieves a value by key. Returns (nil, false, nil) on a miss or when
// Redis is unreachable.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		// A down or unreachable Redis degrades reads to misses rather than
		// taking RemoteStore's read path down with it.
		return nil, false, nil
	}

	return val, true, nil
}

// Set stores val under key with the given ttl. A zero ttl stores without
// expiration, leaving eviction entirely to Redis's own memory policy.
func (b *RedisBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return b.rdb.Set(ctx, key, val, ttl).Err()
}

// Delete removes key.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, key).Err()
}

// Ping checks the Redis connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
