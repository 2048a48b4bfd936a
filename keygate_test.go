package recache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bool64recache/recache"
	"github.com/stretchr/testify/assert"
)

func TestCache_GetOrLoad_SingleFlight_Wait(t *testing.T) {
	ctx := context.Background()

	var loads int32

	store := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{})
	c, err := recache.NewCache(store, recache.CacheOptions{
		CacheName:                                       "single-flight-wait",
		CacheItemExpiry:                                 time.Hour,
		FlushInterval:                                   time.Hour,
		CircuitBreakerTimeoutForAdditionalThreadsPerKey: recache.CircuitBreakerTimeoutInfinite,
	}, func(ctx context.Context, k string) (int, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(5 * time.Millisecond)

		return 42, nil
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	// 15 goroutines race the same cold key with an infinite gate timeout:
	// only the gate winner should ever call the loader, every other
	// goroutine waits for it and is satisfied by the now-fresh entry.
	var wg sync.WaitGroup
	wg.Add(15)

	for i := 0; i < 15; i++ {
		go func() {
			defer wg.Done()

			v, err := c.GetOrLoad(ctx, "shared-key", false)
			assert.NoError(t, err)
			assert.Equal(t, 42, v)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, int(atomic.LoadInt32(&loads)))

	// Repeated sequential calls against the already-fresh key never reload.
	for iter := 0; iter < 500; iter++ {
		v, err := c.GetOrLoad(ctx, "shared-key", false)
		assert.NoError(t, err)
		assert.Equal(t, 42, v)
	}

	assert.Equal(t, 1, int(atomic.LoadInt32(&loads)))
}

func TestCache_GetOrLoad_SingleFlight_ZeroTimeout(t *testing.T) {
	ctx := context.Background()

	var loads int32
	var gateTimeouts int32

	store := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{})
	c, err := recache.NewCache(store, recache.CacheOptions{
		CacheName:                                       "single-flight-zero",
		CacheItemExpiry:                                 time.Hour,
		FlushInterval:                                   time.Hour,
		CircuitBreakerTimeoutForAdditionalThreadsPerKey: 0,
	}, func(ctx context.Context, k string) (int, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(20 * time.Millisecond)

		return 42, nil
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	var wg sync.WaitGroup
	wg.Add(15)

	for i := 0; i < 15; i++ {
		go func() {
			defer wg.Done()

			_, err := c.GetOrLoad(ctx, "shared-key", false)
			if err != nil {
				var cbErr *recache.CircuitBreakerTimeoutError
				if assert.ErrorAs(t, err, &cbErr) {
					atomic.AddInt32(&gateTimeouts, 1)
				}
			}
		}()
	}

	wg.Wait()

	assert.Greater(t, int(atomic.LoadInt32(&gateTimeouts)), 5)
	assert.Equal(t, 1, int(atomic.LoadInt32(&loads)))
}

func TestKeyGateRegistry_PerKeyIsolation(t *testing.T) {
	ctx := context.Background()

	var concurrent int32
	var maxConcurrent int32

	store := recache.NewInMemoryStore[string, int](recache.MemoryStoreOptions{})
	c, err := recache.NewCache(store, recache.CacheOptions{
		CacheName:                                       "isolation",
		CacheItemExpiry:                                 time.Hour,
		FlushInterval:                                   time.Hour,
		CircuitBreakerTimeoutForAdditionalThreadsPerKey: recache.CircuitBreakerTimeoutInfinite,
	}, func(ctx context.Context, k string) (int, error) {
		n := atomic.AddInt32(&concurrent, 1)

		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if n <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, n) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)

		return 1, nil
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			key := "key-" + string(rune('a'+i))
			_, _ = c.GetOrLoad(ctx, key, false)
		}(i)
	}

	wg.Wait()

	// Distinct keys must not serialize through the same gate.
	assert.Greater(t, int(atomic.LoadInt32(&maxConcurrent)), 1)
}
