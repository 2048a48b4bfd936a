package recache_test

import (
	"context"
	"testing"
	"time"

	"github.com/bool64recache/recache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// TestRedisBackend_FailSoft mirrors the teacher's TestL2_FailSoft
// (Keksclan-goRawrSquirrel/cache/redis_integration_test.go): dialing a
// bogus address forces every call to fail without a live Redis instance.
func TestRedisBackend_FailSoft(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:1"})
	b := recache.NewRedisBackend(rdb)
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, ok, err := b.Get(ctx, "no-such-key")
	assert.NoError(t, err, "Get must fail soft on an unreachable Redis")
	assert.False(t, ok)

	// Unlike the teacher's L2.Set, RedisBackend.Set does not fail soft: the
	// write error must propagate so RemoteStore.AddOrUpdate can report
	// ok=false instead of believing a dropped write succeeded.
	err = b.Set(ctx, "k", []byte("v"), time.Second)
	assert.Error(t, err)

	err = b.Delete(ctx, "k")
	assert.Error(t, err)

	err = b.Ping(ctx)
	assert.Error(t, err)
}

func TestRedisBackend_ImplementsBackend(t *testing.T) {
	var _ recache.Backend = recache.NewRedisBackend(redis.NewClient(&redis.Options{}))
}
