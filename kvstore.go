package recache

import (
	"context"
	"time"
)

// KVStore is the abstract key-value backend a Cache is built on. It may be
// backed by an authoritative in-process map (InMemoryStore,
// ShardedInMemoryStore) or by a remote system that owns expiry itself
// (RemoteStore).
//
// Implementations must be safe for concurrent use. TryGet must observe a
// consistent Entry: a reader never sees a value paired with a timestamp from
// a different write. Entries iterates a weakly-consistent snapshot: it may
// or may not reflect writes that race with the iteration.
type KVStore[K comparable, V any] interface {
	// TryGet returns the entry stored for k, if any.
	TryGet(ctx context.Context, k K) (Entry[V], bool)

	// Touch updates the TimeLastAccessed of the entry stored for k, and its
	// TimeLoaded too when resetExpiry is true. It does not create an entry
	// when k is absent. This elaborates on spec.md's narrative requirement
	// ("timeLastAccessed: updated on every successful read") which §4.1's
	// operation table does not spell out as its own primitive.
	Touch(ctx context.Context, k K, resetExpiry bool) (Entry[V], bool)

	// TryAdd inserts v under k only if k is absent. Returns true iff the
	// insertion happened.
	TryAdd(ctx context.Context, k K, v V) bool

	// AddOrUpdate atomically inserts addV if k is absent, or replaces the
	// existing value with update(k, oldV) if present. It returns the
	// resulting entry, or false if the backend rejected the write (e.g. a
	// remote store that is temporarily unavailable).
	AddOrUpdate(ctx context.Context, k K, addV V, update func(k K, oldV V) V) (Entry[V], bool)

	// TryRemove deletes k if present, returning the removed entry.
	TryRemove(ctx context.Context, k K) (Entry[V], bool)

	// Entries returns a snapshot-per-pair sequence of all stored entries.
	Entries(ctx context.Context) []KeyEntry[K, V]

	// FlushInvalidated runs the sweep: it invalidates every entry loaded
	// before staleCutoff via invalidate, then — if the surviving population
	// still exceeds maxSize — invalidates the oldest-loaded/oldest-accessed
	// surplus. It returns the number of entries still present afterward.
	// maxSize == 0 disables size trimming.
	FlushInvalidated(ctx context.Context, maxSize int, staleCutoff time.Time, invalidate func(k K) bool) (int, error)

	// InvalidateAll removes every entry, calling invalidate for each key.
	InvalidateAll(ctx context.Context, invalidate func(k K) bool) error
}

// KeyEntry pairs a key with its entry, as produced by KVStore.Entries.
type KeyEntry[K comparable, V any] struct {
	Key   K
	Entry Entry[V]
}
