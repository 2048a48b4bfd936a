package recache

// Metric names reported to a stats.Tracker. Matches the naming the teacher
// uses in memory.go and failover.go (MetricHit, MetricMiss, ...), extended
// with coordinator-level metrics the distilled spec adds (gate timeouts,
// sweep outcomes, self-refresh outcomes).
const (
	MetricHit         = "cache.hit"
	MetricMiss        = "cache.miss"
	MetricWrite       = "cache.write"
	MetricExpired     = "cache.expired"
	MetricEvict       = "cache.evict"
	MetricItems       = "cache.items"
	MetricBuild       = "cache.build"
	MetricFailed      = "cache.failed"
	MetricRefreshed   = "cache.refreshed"
	MetricGateTimeout = "cache.gate_timeout"
	MetricFlush       = "cache.flush"
)
