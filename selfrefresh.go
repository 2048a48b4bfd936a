package recache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SelfRefreshingCache wraps a Cache with a periodic control loop that
// proactively reloads every currently-held key on RefreshInterval, per
// spec.md §4.5. It exposes the same read/write surface as Cache by
// embedding it.
type SelfRefreshingCache[K comparable, V any] struct {
	*Cache[K, V]

	opts SelfRefreshingCacheOptions

	closeOnce      sync.Once
	closed         chan struct{}
	refreshDone    chan struct{}
	cancelInFlight context.CancelFunc
	cancelMu       sync.Mutex
}

// NewSelfRefreshingCache validates opts, builds the underlying Cache, and
// starts the refresh loop.
func NewSelfRefreshingCache[K comparable, V any](store KVStore[K, V], opts SelfRefreshingCacheOptions, loader Loader[K, V]) (*SelfRefreshingCache[K, V], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cache, err := NewCache(store, opts.CacheOptions, loader)
	if err != nil {
		return nil, err
	}

	src := &SelfRefreshingCache[K, V]{
		Cache:       cache,
		opts:        opts,
		closed:      make(chan struct{}),
		refreshDone: make(chan struct{}),
	}

	go src.refreshLoop()

	return src, nil
}

// refreshLoop ticks every RefreshInterval, snapshotting the current key set
// via Items and reloading each in parallel without ordering guarantees.
func (s *SelfRefreshingCache[K, V]) refreshLoop() {
	defer close(s.refreshDone)

	timer := time.NewTimer(s.opts.RefreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-timer.C:
			s.refreshAll()
			timer.Reset(s.opts.RefreshInterval)
		}
	}
}

func (s *SelfRefreshingCache[K, V]) refreshAll() {
	ctx, cancel := context.WithCancel(context.Background())

	s.cancelMu.Lock()
	s.cancelInFlight = cancel
	s.cancelMu.Unlock()

	defer cancel()

	refreshID := uuid.New().String()
	keys := s.Items(ctx)

	s.logDebug(ctx, "starting self-refresh tick", "refresh_id", refreshID, "keys", len(keys))

	// A plain Group, not errgroup.WithContext: that variant cancels its
	// derived context the moment any one goroutine returns an error, which
	// would abort every other key's in-flight refresh on a single loader
	// failure. Each key gets the tick's own ctx instead, independent of its
	// siblings' outcomes.
	var g errgroup.Group
	if s.opts.MaxConcurrentRefreshes > 0 {
		g.SetLimit(s.opts.MaxConcurrentRefreshes)
	}

	for _, ke := range keys {
		k := ke.Key

		g.Go(func() error {
			// A key invalidated between the snapshot and this refresh
			// simply re-populates; the race is tolerated per spec.md §9.
			// WithSkipRead makes GetOrLoad call the loader even for a key
			// that is still fresh, so every held key is actually reloaded.
			_, err := s.GetOrLoad(WithSkipRead(ctx), k, true)
			if err == nil {
				s.addStat(ctx, MetricRefreshed, 1)
			}

			return err
		})
	}

	// Errors from individual loaders are not fatal to the refresh tick —
	// one bad key must not stop the others from refreshing — so the
	// errgroup's aggregate error is only used to decide when every
	// goroutine has finished, never surfaced to a caller.
	_ = g.Wait()

	s.logDebug(ctx, "finished self-refresh tick", "refresh_id", refreshID)
}

// Close stops the refresh loop, cancels any in-flight refresh tick
// cooperatively, and then closes the underlying Cache.
func (s *SelfRefreshingCache[K, V]) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.cancelMu.Lock()
		if s.cancelInFlight != nil {
			s.cancelInFlight()
		}
		s.cancelMu.Unlock()

		<-s.refreshDone
	})

	return s.Cache.Close(ctx)
}
