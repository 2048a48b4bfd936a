package recache

import (
	"context"
	"time"
)

// NoOpStore is a KVStore that never retains anything. Useful to disable
// caching in a code path without changing the Cache call sites, or as the
// Upstream for a Cache under test. Grounded on the teacher's NoOp ReadWriter
// stub, generalized to the full KVStore contract.
type NoOpStore[K comparable, V any] struct{}

var _ KVStore[string, int] = NoOpStore[string, int]{}

// TryGet always misses.
func (NoOpStore[K, V]) TryGet(ctx context.Context, k K) (Entry[V], bool) {
	return Entry[V]{}, false
}

// Touch is a no-op; there is never an entry to touch.
func (NoOpStore[K, V]) Touch(ctx context.Context, k K, resetExpiry bool) (Entry[V], bool) {
	return Entry[V]{}, false
}

// TryAdd discards v and reports success, matching NoOp.Write's
// discard-without-error behavior.
func (NoOpStore[K, V]) TryAdd(ctx context.Context, k K, v V) bool {
	return true
}

// AddOrUpdate discards the write but still returns a synthetic fresh entry
// so callers that depend on the returned value (e.g. Cache.GetOrLoad) keep
// working.
func (NoOpStore[K, V]) AddOrUpdate(ctx context.Context, k K, addV V, update func(k K, oldV V) V) (Entry[V], bool) {
	return NewEntry(addV, time.Now()), true
}

// TryRemove always reports nothing removed.
func (NoOpStore[K, V]) TryRemove(ctx context.Context, k K) (Entry[V], bool) {
	return Entry[V]{}, false
}

// Entries is always empty.
func (NoOpStore[K, V]) Entries(ctx context.Context) []KeyEntry[K, V] {
	return nil
}

// FlushInvalidated is a no-op: there is nothing to sweep.
func (NoOpStore[K, V]) FlushInvalidated(ctx context.Context, maxSize int, staleCutoff time.Time, invalidate func(k K) bool) (int, error) {
	return 0, nil
}

// InvalidateAll is a no-op.
func (NoOpStore[K, V]) InvalidateAll(ctx context.Context, invalidate func(k K) bool) error {
	return nil
}
