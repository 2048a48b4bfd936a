package recache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bool64recache/recache"
	"github.com/stretchr/testify/assert"
)

// disposableValue is a Disposer-implementing cache value; disposed counts
// how many times Dispose fired, shared across copies via a pointer so tests
// can assert on it from outside the cache.
type disposableValue struct {
	id       int
	disposed *int32
}

func (d *disposableValue) Dispose() {
	atomic.AddInt32(d.disposed, 1)
}

func TestCache_Dispose_OnInvalidate(t *testing.T) {
	ctx := context.Background()

	var disposed int32

	store := recache.NewInMemoryStore[string, *disposableValue](recache.MemoryStoreOptions{})
	opts := testOptions("dispose-invalidate")
	opts.DisposeExpiredValuesIfDisposable = true

	c, err := recache.NewCache[string, *disposableValue](store, opts, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	c.Put(ctx, "k", &disposableValue{id: 1, disposed: &disposed})

	assert.True(t, c.Invalidate(ctx, "k"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&disposed))
}

func TestCache_Dispose_OnSweepEviction(t *testing.T) {
	ctx := context.Background()

	var disposed int32

	store := recache.NewInMemoryStore[string, *disposableValue](recache.MemoryStoreOptions{})
	opts := testOptions("dispose-sweep")
	opts.DisposeExpiredValuesIfDisposable = true
	opts.CacheItemExpiry = 10 * time.Millisecond

	c, err := recache.NewCache[string, *disposableValue](store, opts, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	c.Put(ctx, "k", &disposableValue{id: 1, disposed: &disposed})

	time.Sleep(30 * time.Millisecond)

	_, _, err = c.FlushInvalidatedEntries(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&disposed))
}

func TestCache_Dispose_NotFiredWhenOptionDisabled(t *testing.T) {
	ctx := context.Background()

	var disposed int32

	store := recache.NewInMemoryStore[string, *disposableValue](recache.MemoryStoreOptions{})
	opts := testOptions("dispose-disabled")
	opts.DisposeExpiredValuesIfDisposable = false

	c, err := recache.NewCache[string, *disposableValue](store, opts, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	c.Put(ctx, "k", &disposableValue{id: 1, disposed: &disposed})

	assert.True(t, c.Invalidate(ctx, "k"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&disposed))
}

func TestCache_Dispose_NotFiredWhenReplacedWithSameIdentity(t *testing.T) {
	ctx := context.Background()

	var disposed int32

	store := recache.NewInMemoryStore[string, *disposableValue](recache.MemoryStoreOptions{})
	opts := testOptions("dispose-same-identity")
	opts.DisposeExpiredValuesIfDisposable = true

	c, err := recache.NewCache[string, *disposableValue](store, opts, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	v := &disposableValue{id: 1, disposed: &disposed}

	c.Put(ctx, "k", v)
	c.Put(ctx, "k", v) // same pointer: must not dispose itself

	assert.Equal(t, int32(0), atomic.LoadInt32(&disposed))

	other := &disposableValue{id: 2, disposed: &disposed}

	c.Put(ctx, "k", other) // distinct pointer: displaced value disposes

	assert.Equal(t, int32(1), atomic.LoadInt32(&disposed))
}

func TestCache_Dispose_NotFiredWhenLoaderReturnsSameIdentity(t *testing.T) {
	ctx := context.Background()

	var disposed int32

	shared := &disposableValue{id: 1, disposed: &disposed}

	store := recache.NewInMemoryStore[string, *disposableValue](recache.MemoryStoreOptions{})
	opts := testOptions("dispose-loader-same-identity")
	opts.DisposeExpiredValuesIfDisposable = true
	opts.CacheItemExpiry = 10 * time.Millisecond

	c, err := recache.NewCache[string, *disposableValue](store, opts, func(ctx context.Context, k string) (*disposableValue, error) {
		return shared, nil
	})
	assert.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })

	_, err = c.GetOrLoad(ctx, "k", false)
	assert.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	// The stale entry reloads to the very same pointer the loader always
	// returns: the "replacement" must not dispose it out from under the
	// value the caller is about to receive.
	v, err := c.GetOrLoad(ctx, "k", false)
	assert.NoError(t, err)
	assert.Same(t, shared, v)
	assert.Equal(t, int32(0), atomic.LoadInt32(&disposed))
}
