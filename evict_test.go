package recache_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bool64recache/recache"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryStore_evictHeapInUse(t *testing.T) {
	ctx := context.Background()

	s := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{
		HeapInUseSoftLimit: 1, // force eviction on the next sweep
	})

	for i := 0; i < 1000; i++ {
		s.AddOrUpdate(ctx, strconv.Itoa(i), i, func(string, int) int { return i })
	}

	n, err := s.FlushInvalidated(ctx, 0, time.Time{}, func(string) bool { return false })
	assert.NoError(t, err)
	assert.Equal(t, 900, n)
	assert.Equal(t, 900, s.Len())
}

func TestInMemoryStore_evictHeapInUse_disabled(t *testing.T) {
	ctx := context.Background()

	s := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{
		HeapInUseSoftLimit: 0, // disabled
	})

	for i := 0; i < 1000; i++ {
		s.AddOrUpdate(ctx, strconv.Itoa(i), i, func(string, int) int { return i })
	}

	n, err := s.FlushInvalidated(ctx, 0, time.Time{}, func(string) bool { return false })
	assert.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestInMemoryStore_evictHeapInUse_highThreshold(t *testing.T) {
	ctx := context.Background()

	s := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{
		HeapInUseSoftLimit: 1 << 40, // well above actual usage, eviction skipped
	})

	for i := 0; i < 1000; i++ {
		s.AddOrUpdate(ctx, strconv.Itoa(i), i, func(string, int) int { return i })
	}

	n, err := s.FlushInvalidated(ctx, 0, time.Time{}, func(string) bool { return false })
	assert.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestInMemoryStore_evictHeapInUse_concurrency(t *testing.T) {
	ctx := context.Background()

	s := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{
		HeapInUseSoftLimit: 1,
	})

	wg := sync.WaitGroup{}
	wg.Add(1000)

	for i := 0; i < 1000; i++ {
		i := i

		go func() {
			defer wg.Done()

			if i%100 == 0 {
				_, _ = s.FlushInvalidated(ctx, 0, time.Time{}, func(string) bool { return false })
			}

			k := strconv.Itoa(i % 100)
			s.AddOrUpdate(ctx, k, i, func(string, int) int { return i })
		}()
	}

	wg.Wait()
}
