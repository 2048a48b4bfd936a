// Package recache provides a generic, read-through, in-process cache with
// per-key single-flight loading, background eviction, size-bound trimming,
// expiry jitter and a pluggable backing store.
//
// Features:
//
//   - Generic over comparable keys and arbitrary values.
//   - Read-through loading: a cold miss triggers at most one call to the
//     loader, other callers wait for or short-circuit against it.
//   - Background sweep evicts stale entries and trims oversized populations.
//   - Expiry jitter spreads reloads to avoid synchronized cache stampedes.
//   - Pluggable KVStore: in-memory (authoritative expiry) or remote
//     (deferred expiry, e.g. Redis).
//   - Optional self-refresh mode proactively reloads every held key on a
//     fixed cadence.
//   - Optional logging and stats collection via bool64/ctxd and bool64/stats.
package recache
