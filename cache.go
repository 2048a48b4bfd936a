package recache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Loader produces the value for a cold key. It is treated as authoritative:
// whatever it returns for k becomes the cached value for k. Errors
// propagate verbatim out of GetOrLoad.
type Loader[K comparable, V any] func(ctx context.Context, k K) (V, error)

// Cache is the coordinator described in spec.md §4.3: it serializes
// concurrent loads per key via a KeyGate registry, decides freshness with a
// jittered cutoff, runs the periodic sweep, and composes with a KVStore.
type Cache[K comparable, V any] struct {
	store  KVStore[K, V]
	opts   CacheOptions
	loader Loader[K, V]
	gates  *keyGateRegistry[K]
	rng    *lockedRand

	closeOnce sync.Once
	closed    chan struct{}
	sweepDone chan struct{}
}

// lockedRand is a mutex-guarded math/rand source, since spec.md §4.3 makes
// thread-safety of the jitter randomizer the implementer's responsibility.
type lockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{src: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *lockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.src.Float64()
}

// NewCache validates opts, wires store and loader, and starts the
// background sweep. loader may be nil if every call site supplies its own
// via GetOrLoadWith.
func NewCache[K comparable, V any](store KVStore[K, V], opts CacheOptions, loader Loader[K, V]) (*Cache[K, V], error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store must not be nil", ErrInvalidArgument)
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}

	c := &Cache[K, V]{
		store:     store,
		opts:      opts,
		loader:    loader,
		gates:     newKeyGateRegistry[K](),
		rng:       newLockedRand(),
		closed:    make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	go c.sweepLoop()

	return c, nil
}

func (c *Cache[K, V]) logDebug(ctx context.Context, msg string, kv ...any) {
	if c.opts.Logger != nil {
		c.opts.Logger.Debug(ctx, msg, append([]any{"name", c.opts.CacheName}, kv...)...)
	}
}

func (c *Cache[K, V]) addStat(ctx context.Context, metric string, delta float64) {
	if c.opts.Stats != nil {
		c.opts.Stats.Add(ctx, metric, delta, "name", c.opts.CacheName)
	}
}

// cutoff returns the freshness cutoff instant, applying jitter per
// spec.md §4.3 when CacheItemExpiryPercentageRandomization > 0.
func (c *Cache[K, V]) cutoff() time.Time {
	if c.opts.CacheItemExpiryPercentageRandomization == 0 {
		return time.Now().Add(-c.opts.CacheItemExpiry)
	}

	windowMs := c.opts.expiryJitterMs()
	if windowMs < 1 {
		windowMs = 1
	}

	half := windowMs / 2
	effectiveMs := float64(c.opts.CacheItemExpiry.Milliseconds()) - half + c.rng.Float64()*windowMs

	return time.Now().Add(-time.Duration(effectiveMs) * time.Millisecond)
}

// sweepCutoff is the unjittered cutoff used by the background sweep:
// jitter is a read-path concern, the sweep is eventually consistent per
// spec.md §4.3.
func (c *Cache[K, V]) sweepCutoff() time.Time {
	return time.Now().Add(-c.opts.CacheItemExpiry)
}

func (c *Cache[K, V]) fireHit(k K, e Entry[V]) {
	if c.opts.HitCallback == nil {
		return
	}

	defer func() { _ = recover() }()

	c.opts.HitCallback(k, e)
}

func (c *Cache[K, V]) fireMissed(k K, e Entry[V], elapsed time.Duration) {
	if c.opts.MissedCallback == nil {
		return
	}

	defer func() { _ = recover() }()

	c.opts.MissedCallback(k, e, elapsed)
}

func (c *Cache[K, V]) fireFlush(remaining, flushed int, elapsed time.Duration) {
	if c.opts.FlushCallback == nil {
		return
	}

	defer func() { _ = recover() }()

	c.opts.FlushCallback(remaining, flushed, elapsed)
}

// TryGet returns the fresh value cached for k, never loading. An expired
// entry is reported as absent but is not removed — the sweep does that.
func (c *Cache[K, V]) TryGet(ctx context.Context, k K, resetExpiryOnHit bool) (V, bool) {
	return c.tryGetFresh(ctx, k, resetExpiryOnHit)
}

func (c *Cache[K, V]) tryGetFresh(ctx context.Context, k K, resetExpiryOnHit bool) (V, bool) {
	var zero V

	if SkipRead(ctx) {
		return zero, false
	}

	e, ok := c.store.TryGet(ctx, k)
	if !ok {
		return zero, false
	}

	if e.TimeLoaded.Before(c.cutoff()) {
		return zero, false
	}

	if touched, ok := c.store.Touch(ctx, k, resetExpiryOnHit); ok {
		e = touched
	}

	c.addStat(ctx, MetricHit, 1)
	c.fireHit(k, e)

	return e.Value, true
}

// TryAdd inserts v under k only if k is absent.
func (c *Cache[K, V]) TryAdd(ctx context.Context, k K, v V) bool {
	return c.store.TryAdd(ctx, k, v)
}

// Put writes v under k unconditionally, via the loader-free path. Disposal
// of a displaced value follows the same reference-identity rule as a
// loader-driven replacement.
func (c *Cache[K, V]) Put(ctx context.Context, k K, v V) {
	prior, hadPrior := c.store.TryGet(ctx, k)

	c.store.AddOrUpdate(ctx, k, v, func(K, V) V { return v })

	if hadPrior && c.opts.DisposeExpiredValuesIfDisposable && !sameIdentity(prior.Value, v) {
		dispose(prior.Value)
	}
}

// Invalidate removes k, disposing its value when configured. It reports
// whether a removal occurred.
func (c *Cache[K, V]) Invalidate(ctx context.Context, k K) bool {
	e, removed := c.store.TryRemove(ctx, k)
	if removed && c.opts.DisposeExpiredValuesIfDisposable {
		dispose(e.Value)
	}

	return removed
}

// InvalidateAll removes every entry via the store's bulk path, sharing
// Invalidate's disposal behavior for each key.
func (c *Cache[K, V]) InvalidateAll(ctx context.Context) error {
	return c.store.InvalidateAll(ctx, func(k K) bool { return c.Invalidate(ctx, k) })
}

// HasKey reports store membership, ignoring freshness.
func (c *Cache[K, V]) HasKey(ctx context.Context, k K) bool {
	_, ok := c.store.TryGet(ctx, k)
	return ok
}

// Items returns a snapshot of every stored key/entry pair, fresh or stale.
func (c *Cache[K, V]) Items(ctx context.Context) []KeyEntry[K, V] {
	return c.store.Entries(ctx)
}

// Count materializes Items and returns its length.
func (c *Cache[K, V]) Count(ctx context.Context) int {
	return len(c.Items(ctx))
}

// GetOrLoad is the read-through entry point: a fresh hit returns
// immediately; a miss or stale entry serializes through the per-key gate
// and calls the cache's default loader.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, k K, resetExpiryOnHit bool) (V, error) {
	return c.GetOrLoadWith(ctx, k, resetExpiryOnHit, c.loader)
}

// GetOrLoadWith is GetOrLoad with an explicit per-call loader, overriding
// the cache's default.
func (c *Cache[K, V]) GetOrLoadWith(ctx context.Context, k K, resetExpiryOnHit bool, loader Loader[K, V]) (V, error) {
	var zero V

	if loader == nil {
		return zero, fmt.Errorf("%w: loader must not be nil", ErrInvalidArgument)
	}

	select {
	case <-c.closed:
		return zero, ErrCacheClosed
	default:
	}

	if v, ok := c.tryGetFresh(ctx, k, resetExpiryOnHit); ok {
		return v, nil
	}

	gate := c.gates.ensure(k)

	if err := gate.acquire(ctx, c.opts.CircuitBreakerTimeoutForAdditionalThreadsPerKey); err != nil {
		c.addStat(ctx, MetricGateTimeout, 1)

		return zero, &CircuitBreakerTimeoutError{
			CacheName: c.opts.CacheName,
			Key:       k,
			Timeout:   c.opts.CircuitBreakerTimeoutForAdditionalThreadsPerKey,
		}
	}
	defer gate.release()

	return c.getIfFreshElseLoad(ctx, k, resetExpiryOnHit, loader)
}

func (c *Cache[K, V]) getIfFreshElseLoad(ctx context.Context, k K, resetExpiryOnHit bool, loader Loader[K, V]) (V, error) {
	var zero V

	if v, ok := c.tryGetFresh(ctx, k, resetExpiryOnHit); ok {
		return v, nil
	}

	prior, hadPrior := c.store.TryGet(ctx, k)

	start := time.Now()

	loaded, err := loader(ctx, k)
	if err != nil {
		c.addStat(ctx, MetricFailed, 1)
		return zero, err
	}

	newEntry, stored := c.store.AddOrUpdate(ctx, k, loaded, func(K, V) V { return loaded })
	elapsed := time.Since(start)

	c.addStat(ctx, MetricBuild, 1)
	c.fireMissed(k, newEntry, elapsed)
	c.logDebug(ctx, "loaded cache value", "key", k, "elapsed", elapsed)

	if !stored {
		// Store write rejection: per spec.md §7 the caller still gets the
		// freshly loaded value; a transient store failure never surfaces
		// as a user-visible loader failure.
		return loaded, nil
	}

	if hadPrior && c.opts.DisposeExpiredValuesIfDisposable && !sameIdentity(prior.Value, loaded) {
		dispose(prior.Value)
	}

	return loaded, nil
}

// FlushInvalidatedEntries runs the sweep once, outside of its normal
// timer-driven cadence, and fires FlushCallback.
func (c *Cache[K, V]) FlushInvalidatedEntries(ctx context.Context) (remaining, flushed int, err error) {
	start := time.Now()
	before := c.Count(ctx)

	remaining, err = c.store.FlushInvalidated(ctx, c.opts.MaximumCacheSizeIndicator, c.sweepCutoff(), func(k K) bool {
		return c.Invalidate(ctx, k)
	})
	if err != nil {
		return remaining, 0, err
	}

	flushed = before - remaining
	if flushed < 0 {
		flushed = 0
	}

	elapsed := time.Since(start)

	c.addStat(ctx, MetricFlush, float64(flushed))
	c.fireFlush(remaining, flushed, elapsed)
	c.logDebug(ctx, "flushed cache", "remaining", remaining, "flushed", flushed, "elapsed", elapsed)

	return remaining, flushed, nil
}

// sweepLoop drives the recurring sweep as a stop-before-sweep,
// start-after-sweep one-shot timer, per spec.md §5: sweeps never overlap.
func (c *Cache[K, V]) sweepLoop() {
	defer close(c.sweepDone)

	timer := time.NewTimer(c.opts.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-timer.C:
			sweepID := uuid.New().String()
			ctx := context.Background()

			c.logDebug(ctx, "starting sweep", "sweep_id", sweepID)

			if _, _, err := c.FlushInvalidatedEntries(ctx); err != nil {
				c.logDebug(ctx, "sweep failed", "sweep_id", sweepID, "error", err)
			}

			timer.Reset(c.opts.FlushInterval)
		}
	}
}

// Close stops the sweep, invalidates every entry (disposing values when
// configured), and drains the key-gate registry, per spec.md §5
// ("Disposal").
func (c *Cache[K, V]) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		<-c.sweepDone
	})

	err := c.InvalidateAll(ctx)
	c.gates.drain()

	return err
}

// sameIdentity reports whether a and b are the same underlying object,
// resolving spec.md §9's open question (b): dispose-on-replace must not
// fire when a value is "replaced" with itself. Value types (structs,
// numbers, strings) have no shared identity to preserve, so they are
// always treated as distinct — disposal of a value type only matters if it
// implements Disposer via a pointer receiver, which requires V to be a
// pointer in the first place.
func sameIdentity[V any](a, b V) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !ra.IsValid() || !rb.IsValid() || ra.Kind() != rb.Kind() {
		return false
	}

	switch ra.Kind() { //nolint:exhaustive // only pointer-like kinds carry identity.
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	default:
		return false
	}
}

// ErrLoaderPanicked wraps a recovered panic from a user loader or callback,
// should a caller choose to guard GetOrLoad with recover(). Cache itself
// never recovers loader panics — only callback panics are swallowed, per
// spec.md §7 ("Loader failure... propagated verbatim").
var ErrLoaderPanicked = errors.New("recache: loader panicked")
