package recache

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyGate is a per-key mutual-exclusion token. It is a buffered channel of
// capacity 1 used as a binary semaphore: the channel holds a token while
// free, and is empty while held. This lets acquire race a bounded wait
// against the token instead of a plain sync.Mutex, which has no timed
// variant. Grounded on the teacher's failover.go keyLocks/chan struct{}
// pattern, generalized from a single global map+mutex to a lock-free
// registry with one token per key.
type keyGate struct {
	token chan struct{}
}

func newKeyGate() *keyGate {
	g := &keyGate{token: make(chan struct{}, 1)}
	g.token <- struct{}{}

	return g
}

// acquire blocks until the gate is free, ctx is done, or timeout elapses.
// A timeout of 0 means "don't wait beyond the first holder": fail
// immediately if the gate isn't free. A negative timeout waits forever.
func (g *keyGate) acquire(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		select {
		case <-g.token:
			return nil
		default:
			return context.DeadlineExceeded
		}
	}

	if timeout < 0 {
		select {
		case <-g.token:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-g.token:
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *keyGate) release() {
	select {
	case g.token <- struct{}{}:
	default:
		// Already free; release called more times than acquire. Ignored to
		// keep release idempotent under defer-heavy call sites.
	}
}

// keyGateRegistry is the concurrent map from key to keyGate described in
// spec §4.4. Per the reference's documented open question, gates are never
// removed on the hot path — only drain removes them, on cache disposal.
type keyGateRegistry[K comparable] struct {
	gates *xsync.MapOf[K, *keyGate]
}

func newKeyGateRegistry[K comparable]() *keyGateRegistry[K] {
	return &keyGateRegistry[K]{gates: xsync.NewMapOf[K, *keyGate]()}
}

// ensure performs get-or-create: build a tentative gate, insert it only if
// no gate exists yet for k, and discard the tentative gate if a concurrent
// caller won the race. The tentative gate holds no resources beyond its
// channel, so "discard" is simply dropping the reference.
func (r *keyGateRegistry[K]) ensure(k K) *keyGate {
	tentative := newKeyGate()
	actual, _ := r.gates.LoadOrStore(k, tentative)

	return actual
}

// drain iterates a snapshot of the registry, releasing nothing (callers may
// still hold a gate) but removing every entry so a disposed cache does not
// keep growing memory, per §4.4 and §5 ("Disposal... drains key gates").
func (r *keyGateRegistry[K]) drain() {
	var keys []K

	r.gates.Range(func(k K, _ *keyGate) bool {
		keys = append(keys, k)
		return true
	})

	for _, k := range keys {
		r.gates.Delete(k)
	}
}
