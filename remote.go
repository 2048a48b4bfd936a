package recache

import (
	"context"
	"fmt"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
	"github.com/puzpuzpuz/xsync/v3"
)

// Backend is the minimal contract a remote key-value system must expose for
// RemoteStore to build a KVStore on top of it. Per spec.md §6, a backend
// that owns its own TTL (Redis with SETEX, e.g.) is free to ignore the ttl
// argument's semantics beyond "expire eventually" — RemoteStore's sweep is
// a no-op in that mode regardless.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RemoteStoreOptions configures RemoteStore.
type RemoteStoreOptions[K comparable, V any] struct {
	Name string

	// Backend is the remote system RemoteStore delegates to. Required.
	Backend Backend

	// KeyCodec converts cache keys to the backend's string keyspace.
	// Required.
	KeyCodec KeyCodec[K]

	// ValueCodec serializes cache values. Defaults to JSONValueCodec[V].
	ValueCodec ValueCodec[V]

	// TTL is passed to Backend.Set on every write. Most remote backends
	// use this as the authoritative expiry; RemoteStore's own
	// FlushInvalidated is a no-op in that case (spec.md §6).
	TTL time.Duration

	Logger ctxd.Logger
	Stats  stats.Tracker
}

// localMeta is RemoteStore's best-effort, process-local approximation of an
// entry's timestamps — the remote backend itself is the timestamp
// authority, so these are advisory only and not shared across processes,
// per spec.md §2 ("RemoteStore... timestamps are best-effort").
type localMeta struct {
	timeLoaded       time.Time
	timeLastAccessed time.Time
}

// RemoteStore is a KVStore backed by a remote keyspace (e.g. Redis). Expiry
// is deferred to Backend; FlushInvalidated and InvalidateAll are no-ops
// when Backend owns TTL, matching the teacher's NoOp-store posture for
// remote-owned eviction.
type RemoteStore[K comparable, V any] struct {
	opts RemoteStoreOptions[K, V]
	meta *xsync.MapOf[string, localMeta]
}

var _ KVStore[string, int] = (*RemoteStore[string, int])(nil)

// NewRemoteStore builds a RemoteStore. Panics-free validation happens at
// call sites (NewCache validates CacheOptions, not store construction);
// callers are expected to supply a non-nil Backend and KeyCodec.
func NewRemoteStore[K comparable, V any](opts RemoteStoreOptions[K, V]) *RemoteStore[K, V] {
	if opts.ValueCodec == nil {
		opts.ValueCodec = JSONValueCodec[V]{}
	}

	return &RemoteStore[K, V]{opts: opts, meta: xsync.NewMapOf[string, localMeta]()}
}

func (s *RemoteStore[K, V]) logDebug(ctx context.Context, msg string, kv ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(ctx, msg, append([]any{"name", s.opts.Name}, kv...)...)
	}
}

func (s *RemoteStore[K, V]) addStat(ctx context.Context, metric string, delta float64) {
	if s.opts.Stats != nil {
		s.opts.Stats.Add(ctx, metric, delta, "name", s.opts.Name)
	}
}

// TryGet fetches and decodes the value for k, pairing it with the
// best-effort local metadata (or a zero-valued one, if this process has not
// seen k before — its entry will read as immediately stale, which is safe:
// the coordinator will simply reload).
func (s *RemoteStore[K, V]) TryGet(ctx context.Context, k K) (Entry[V], bool) {
	key, err := s.opts.KeyCodec.Encode(k)
	if err != nil {
		s.logDebug(ctx, "key encode failed", "error", err)
		return Entry[V]{}, false
	}

	raw, found, err := s.opts.Backend.Get(ctx, key)
	if err != nil || !found {
		if err != nil {
			s.logDebug(ctx, "remote get failed", "key", key, "error", err)
		}

		s.addStat(ctx, MetricMiss, 1)

		return Entry[V]{}, false
	}

	v, err := s.opts.ValueCodec.Decode(raw)
	if err != nil {
		s.logDebug(ctx, "value decode failed", "key", key, "error", err)
		return Entry[V]{}, false
	}

	s.addStat(ctx, MetricHit, 1)

	m, _ := s.meta.Load(key)

	return Entry[V]{Value: v, TimeLoaded: m.timeLoaded, TimeLastAccessed: m.timeLastAccessed}, true
}

// Touch updates the local best-effort timestamps only; it does not re-write
// the remote value, but re-reads it through TryGet to return the entry.
func (s *RemoteStore[K, V]) Touch(ctx context.Context, k K, resetExpiry bool) (Entry[V], bool) {
	key, err := s.opts.KeyCodec.Encode(k)
	if err != nil {
		return Entry[V]{}, false
	}

	now := time.Now()

	m, _ := s.meta.Load(key)
	m.timeLastAccessed = now

	if resetExpiry {
		m.timeLoaded = now
	}

	s.meta.Store(key, m)

	e, ok := s.TryGet(ctx, k)
	if !ok {
		return Entry[V]{}, false
	}

	e.TimeLoaded, e.TimeLastAccessed = m.timeLoaded, m.timeLastAccessed

	return e, true
}

// TryAdd writes v under k only if the remote key is currently absent. This
// is necessarily check-then-act against the remote system: RemoteStore
// cannot offer the atomic guarantee InMemoryStore does without a
// backend-specific conditional write (e.g. Redis SETNX), which Backend does
// not expose.
func (s *RemoteStore[K, V]) TryAdd(ctx context.Context, k K, v V) bool {
	if _, found := s.TryGet(ctx, k); found {
		return false
	}

	_, ok := s.AddOrUpdate(ctx, k, v, func(K, V) V { return v })

	return ok
}

// AddOrUpdate writes update(k, old) (or addV, if absent) to the remote
// backend and records local best-effort timestamps. It reports false if the
// backend write failed, per spec.md §4.1 ("backend-rejected write -> null
// entry").
func (s *RemoteStore[K, V]) AddOrUpdate(ctx context.Context, k K, addV V, update func(k K, oldV V) V) (Entry[V], bool) {
	key, err := s.opts.KeyCodec.Encode(k)
	if err != nil {
		return Entry[V]{}, false
	}

	newVal := addV
	if old, found := s.TryGet(ctx, k); found {
		newVal = update(k, old.Value)
	}

	raw, err := s.opts.ValueCodec.Encode(newVal)
	if err != nil {
		s.logDebug(ctx, "value encode failed", "key", key, "error", err)
		return Entry[V]{}, false
	}

	if err := s.opts.Backend.Set(ctx, key, raw, s.opts.TTL); err != nil {
		s.logDebug(ctx, "remote set failed", "key", key, "error", err)
		return Entry[V]{}, false
	}

	now := time.Now()
	s.meta.Store(key, localMeta{timeLoaded: now, timeLastAccessed: now})
	s.addStat(ctx, MetricWrite, 1)

	return Entry[V]{Value: newVal, TimeLoaded: now, TimeLastAccessed: now}, true
}

// TryRemove deletes k from the remote backend.
func (s *RemoteStore[K, V]) TryRemove(ctx context.Context, k K) (Entry[V], bool) {
	e, found := s.TryGet(ctx, k)

	key, err := s.opts.KeyCodec.Encode(k)
	if err != nil {
		return Entry[V]{}, false
	}

	if err := s.opts.Backend.Delete(ctx, key); err != nil {
		s.logDebug(ctx, "remote delete failed", "key", key, "error", err)
		return Entry[V]{}, false
	}

	s.meta.Delete(key)

	return e, found
}

// Entries cannot enumerate an arbitrary remote keyspace through the minimal
// Backend contract, so it returns the empty set — consistent with
// spec.md §6 allowing a remote store to treat size-indicator sweeping as a
// no-op.
func (s *RemoteStore[K, V]) Entries(ctx context.Context) []KeyEntry[K, V] {
	return nil
}

// FlushInvalidated is a no-op: a RemoteStore defers expiry and eviction to
// the remote backend, per spec.md §6.
func (s *RemoteStore[K, V]) FlushInvalidated(ctx context.Context, maxSize int, staleCutoff time.Time, invalidate func(k K) bool) (int, error) {
	return 0, nil
}

// InvalidateAll is a no-op for the same reason as FlushInvalidated; use the
// backend's own bulk-delete facility (e.g. FLUSHDB) if that is needed.
func (s *RemoteStore[K, V]) InvalidateAll(ctx context.Context, invalidate func(k K) bool) error {
	return nil
}

// ErrKeyEncodeFailed is a sentinel for a KeyCodec.Encode failure. No
// RemoteStore method returns it: a key that fails to encode reads as a miss
// in TryGet and Touch, and as a rejected write in AddOrUpdate and TryRemove.
var ErrKeyEncodeFailed = fmt.Errorf("%w: key encode failed", ErrInvalidArgument)
