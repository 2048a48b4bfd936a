package recache_test

import (
	"context"
	"time"

	"github.com/bool64recache/recache"
)

// constLoader returns a Loader that always yields v.
func constLoader[K comparable, V any](v V) recache.Loader[K, V] {
	return func(ctx context.Context, k K) (V, error) { return v, nil }
}

// testOptions returns minimal valid CacheOptions for name, long enough
// expiry/flush intervals that they don't interfere with a fast test unless
// the test explicitly overrides them.
func testOptions(name string) recache.CacheOptions {
	return recache.CacheOptions{
		CacheName:       name,
		CacheItemExpiry: time.Hour,
		FlushInterval:   time.Hour,
	}
}

// sleepUntil blocks until elapsed time has passed since start.
func sleepUntil(start time.Time, elapsed time.Duration) {
	if d := elapsed - time.Since(start); d > 0 {
		time.Sleep(d)
	}
}
