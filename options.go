package recache

import (
	"fmt"
	"time"

	"github.com/bool64/ctxd"
	"github.com/bool64/stats"
)

// CircuitBreakerTimeoutInfinite tells GetOrLoad to wait forever for a
// key-gate to become available instead of failing with
// CircuitBreakerTimeoutError.
const CircuitBreakerTimeoutInfinite time.Duration = -1

// CacheOptions configures a Cache. Mirrors the field names of spec.md §3,
// Go-typed.
type CacheOptions struct {
	// CacheName identifies the cache in logs, stats and error messages.
	// Must not be blank.
	CacheName string

	// CacheItemExpiry is how long a loaded entry is considered fresh.
	// Must be positive.
	CacheItemExpiry time.Duration

	// CacheItemExpiryPercentageRandomization is the jitter window as a
	// percentage of CacheItemExpiry, in [0, 100].
	CacheItemExpiryPercentageRandomization int

	// FlushInterval is the period of the background sweep. Must be
	// positive.
	FlushInterval time.Duration

	// MaximumCacheSizeIndicator is a soft ceiling on entry count, enforced
	// only at sweep time. 0 disables size trimming.
	MaximumCacheSizeIndicator int

	// CircuitBreakerTimeoutForAdditionalThreadsPerKey bounds how long a
	// caller other than the first will wait for an in-flight load of the
	// same key. 0 means fail immediately if the key is already locked;
	// CircuitBreakerTimeoutInfinite waits forever.
	CircuitBreakerTimeoutForAdditionalThreadsPerKey time.Duration

	// DisposeExpiredValuesIfDisposable releases values implementing
	// Disposer on eviction or replacement.
	DisposeExpiredValuesIfDisposable bool

	// Logger is an optional contextual logger.
	Logger ctxd.Logger

	// Stats is an optional metrics sink.
	Stats stats.Tracker

	// HitCallback, MissedCallback and FlushCallback are optional
	// observability hooks. Panics and errors from these are never allowed
	// to affect cache state; callers should not panic in them regardless.
	HitCallback    func(k any, e any)
	MissedCallback func(k any, e any, elapsed time.Duration)
	FlushCallback  func(remaining, flushed int, elapsed time.Duration)
}

// expiryJitterMs returns the derived
// cacheItemExpiryPercentageRandomizationMilliseconds from spec §3.
func (o CacheOptions) expiryJitterMs() float64 {
	return float64(o.CacheItemExpiry.Milliseconds()) * float64(o.CacheItemExpiryPercentageRandomization) / 100
}

// validate checks the invariants spec §3/§7 place on CacheOptions.
func (o CacheOptions) validate() error {
	if o.CacheName == "" {
		return fmt.Errorf("%w: cache name must not be blank", ErrInvalidArgument)
	}

	if o.CacheItemExpiry <= 0 {
		return fmt.Errorf("%w: cache item expiry must be positive", ErrInvalidArgument)
	}

	if o.CacheItemExpiryPercentageRandomization < 0 || o.CacheItemExpiryPercentageRandomization > 100 {
		return fmt.Errorf("%w: expiry jitter percentage must be within [0, 100]", ErrInvalidArgument)
	}

	if o.FlushInterval <= 0 {
		return fmt.Errorf("%w: flush interval must be positive", ErrInvalidArgument)
	}

	if o.MaximumCacheSizeIndicator < 0 {
		return fmt.Errorf("%w: maximum cache size indicator must not be negative", ErrInvalidArgument)
	}

	return nil
}

// SelfRefreshingCacheOptions embeds CacheOptions and adds the refresh
// cadence for SelfRefreshingCache.
type SelfRefreshingCacheOptions struct {
	CacheOptions

	// RefreshInterval is the cadence at which every currently-held key is
	// reloaded. Must be positive.
	RefreshInterval time.Duration

	// MaxConcurrentRefreshes bounds how many keys are refreshed in
	// parallel per tick. 0 means unlimited.
	MaxConcurrentRefreshes int
}

func (o SelfRefreshingCacheOptions) validate() error {
	if err := o.CacheOptions.validate(); err != nil {
		return err
	}

	if o.RefreshInterval <= 0 {
		return fmt.Errorf("%w: refresh interval must be positive", ErrInvalidArgument)
	}

	return nil
}
