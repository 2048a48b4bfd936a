package recache_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bool64recache/recache"
	"github.com/stretchr/testify/assert"
)

func identityKey(k string) string { return k }

func TestShardedInMemoryStore_TryAdd(t *testing.T) {
	ctx := context.Background()
	s := recache.NewShardedInMemoryStore[string, int](identityKey, recache.MemoryStoreOptions{})

	assert.True(t, s.TryAdd(ctx, "k", 1))
	assert.False(t, s.TryAdd(ctx, "k", 2))

	e, ok := s.TryGet(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, 1, e.Value)
}

func TestShardedInMemoryStore_DistributesAcrossShards(t *testing.T) {
	ctx := context.Background()
	s := recache.NewShardedInMemoryStore[string, int](identityKey, recache.MemoryStoreOptions{})

	for i := 0; i < 500; i++ {
		s.TryAdd(ctx, "key-"+strconv.Itoa(i), i)
	}

	assert.Equal(t, 500, s.Len())
	assert.Len(t, s.Entries(ctx), 500)
}

func TestShardedInMemoryStore_FlushInvalidated(t *testing.T) {
	ctx := context.Background()
	s := recache.NewShardedInMemoryStore[string, int](identityKey, recache.MemoryStoreOptions{})

	s.TryAdd(ctx, "old", 1)
	time.Sleep(20 * time.Millisecond)
	cutoff := time.Now()
	s.TryAdd(ctx, "new", 2)

	n, err := s.FlushInvalidated(ctx, 0, cutoff, func(k string) bool {
		_, removed := s.TryRemove(ctx, k)
		return removed
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := s.TryGet(ctx, "old")
	assert.False(t, ok)
}

func TestShardedInMemoryStore_TryRemove(t *testing.T) {
	ctx := context.Background()
	s := recache.NewShardedInMemoryStore[string, int](identityKey, recache.MemoryStoreOptions{})

	s.TryAdd(ctx, "k", 1)

	_, ok := s.TryRemove(ctx, "k")
	assert.True(t, ok)

	_, ok = s.TryRemove(ctx, "k")
	assert.False(t, ok)
}
