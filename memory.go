package recache

import (
	"context"
	"sort"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStoreOptions configures InMemoryStore. Mirrors the teacher's
// MemoryConfig default-filling style (NewMemory in memory.go).
type MemoryStoreOptions struct {
	// Name is used in stats and log lines.
	Name string

	// Logger is an optional contextual logger. Nil disables logging.
	Logger ctxd.Logger

	// Stats is an optional metrics sink. Nil disables metrics.
	Stats stats.Tracker

	// HeapInUseSoftLimit, if non-zero, makes the sweep additionally evict
	// the most-stale-by-load-time fraction of entries whenever process heap
	// usage exceeds this many bytes, regardless of MaximumCacheSizeIndicator.
	// Grounded on the teacher's evict.go.
	HeapInUseSoftLimit uint64

	// HeapInUseEvictFraction is the fraction of entries evicted when
	// HeapInUseSoftLimit is exceeded, default 0.1 (10%).
	HeapInUseEvictFraction float64
}

// InMemoryStore is a concurrent, in-process KVStore. It is authoritative
// over entry timestamps: TimeLoaded and TimeLastAccessed are only ever set
// by this store's own writers.
type InMemoryStore[K comparable, V any] struct {
	data *xsync.MapOf[K, Entry[V]]
	opts MemoryStoreOptions
}

var _ KVStore[string, int] = (*InMemoryStore[string, int])(nil)

// NewInMemoryStore creates an InMemoryStore with optional configuration.
func NewInMemoryStore[K comparable, V any](opts MemoryStoreOptions) *InMemoryStore[K, V] {
	return &InMemoryStore[K, V]{
		data: xsync.NewMapOf[K, Entry[V]](),
		opts: opts,
	}
}

func (s *InMemoryStore[K, V]) logDebug(ctx context.Context, msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(ctx, msg, append([]any{"name", s.opts.Name}, kv...)...)
	}
}

func (s *InMemoryStore[K, V]) addStat(ctx context.Context, metric string, delta float64) {
	if s.opts.Stats != nil {
		s.opts.Stats.Add(ctx, metric, delta, "name", s.opts.Name)
	}
}

// TryGet returns the entry stored for k, if any.
func (s *InMemoryStore[K, V]) TryGet(ctx context.Context, k K) (Entry[V], bool) {
	e, ok := s.data.Load(k)
	if !ok {
		s.addStat(ctx, MetricMiss, 1)
		return Entry[V]{}, false
	}

	return e, true
}

// Touch updates TimeLastAccessed (and TimeLoaded, if resetExpiry) of the
// entry stored for k without invoking a loader.
func (s *InMemoryStore[K, V]) Touch(ctx context.Context, k K, resetExpiry bool) (Entry[V], bool) {
	now := time.Now()

	result, ok := s.data.Compute(k, func(oldEntry Entry[V], loaded bool) (Entry[V], bool) {
		if !loaded {
			return Entry[V]{}, true
		}

		oldEntry.Touch(now)
		if resetExpiry {
			oldEntry.ResetExpiry(now)
		}

		return oldEntry, false
	})

	return result, ok
}

// TryAdd inserts v under k only if absent.
func (s *InMemoryStore[K, V]) TryAdd(ctx context.Context, k K, v V) bool {
	now := time.Now()
	_, loaded := s.data.LoadOrStore(k, NewEntry(v, now))

	if !loaded {
		s.addStat(ctx, MetricWrite, 1)
		s.logDebug(ctx, "added to cache", "key", k)
	}

	return !loaded
}

// AddOrUpdate atomically inserts addV or applies update to the existing
// value, via the map's CAS-style Compute.
func (s *InMemoryStore[K, V]) AddOrUpdate(ctx context.Context, k K, addV V, update func(k K, oldV V) V) (Entry[V], bool) {
	now := time.Now()

	result, _ := s.data.Compute(k, func(oldEntry Entry[V], loaded bool) (Entry[V], bool) {
		if !loaded {
			return NewEntry(addV, now), false
		}

		newVal := update(k, oldEntry.Value)

		return Entry[V]{Value: newVal, TimeLoaded: now, TimeLastAccessed: now}, false
	})

	s.addStat(ctx, MetricWrite, 1)
	s.logDebug(ctx, "wrote to cache", "key", k)

	return result, true
}

// TryRemove deletes k if present, returning the removed entry.
func (s *InMemoryStore[K, V]) TryRemove(ctx context.Context, k K) (Entry[V], bool) {
	e, loaded := s.data.LoadAndDelete(k)
	if loaded {
		s.logDebug(ctx, "removed from cache", "key", k)
	}

	return e, loaded
}

// Entries returns a weakly-consistent snapshot of all entries.
func (s *InMemoryStore[K, V]) Entries(ctx context.Context) []KeyEntry[K, V] {
	out := make([]KeyEntry[K, V], 0, s.data.Size())

	s.data.Range(func(k K, e Entry[V]) bool {
		out = append(out, KeyEntry[K, V]{Key: k, Entry: e})
		return true
	})

	return out
}

// FlushInvalidated implements the two-phase sweep: stale removal first,
// then oldest-loaded/oldest-accessed trimming toward maxSize.
func (s *InMemoryStore[K, V]) FlushInvalidated(ctx context.Context, maxSize int, staleCutoff time.Time, invalidate func(k K) bool) (int, error) {
	all := s.Entries(ctx)

	surviving := make([]KeyEntry[K, V], 0, len(all))

	for _, ke := range all {
		if ke.Entry.TimeLoaded.Before(staleCutoff) {
			if !invalidate(ke.Key) {
				// Already removed by a concurrent caller; don't double-count.
				surviving = append(surviving, ke)
			}

			continue
		}

		surviving = append(surviving, ke)
	}

	if maxSize > 0 && len(surviving) > maxSize {
		sort.Slice(surviving, func(i, j int) bool {
			if !surviving[i].Entry.TimeLoaded.Equal(surviving[j].Entry.TimeLoaded) {
				return surviving[i].Entry.TimeLoaded.Before(surviving[j].Entry.TimeLoaded)
			}

			return surviving[i].Entry.TimeLastAccessed.Before(surviving[j].Entry.TimeLastAccessed)
		})

		over := len(surviving) - maxSize
		for i := 0; i < over; i++ {
			invalidate(surviving[i].Key)
		}

		surviving = surviving[over:]
	}

	s.evictHeapInUse(ctx)

	remaining := s.Len()

	s.addStat(ctx, MetricItems, float64(remaining))

	return remaining, nil
}

// InvalidateAll removes every entry, calling invalidate for each key.
func (s *InMemoryStore[K, V]) InvalidateAll(ctx context.Context, invalidate func(k K) bool) error {
	for _, ke := range s.Entries(ctx) {
		invalidate(ke.Key)
	}

	return nil
}

// Len returns the number of stored entries, matching the teacher's Memory.Len.
func (s *InMemoryStore[K, V]) Len() int {
	return s.data.Size()
}
