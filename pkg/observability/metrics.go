package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// TicksTotal counts completed ticks per ingester and outcome.
	TicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_ticks_total",
			Help: "Total number of ingester ticks processed",
		},
		[]string{"ingester", "status"}, // status: success, failed
	)

	// TickDuration measures end-to-end tick latency (claim through
	// store+publish) in seconds.
	TickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chomp_tick_duration_seconds",
			Help:    "Tick execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"ingester", "status"},
	)

	// ClaimsTotal counts claim attempts per outcome (spec.md §4.2).
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_claims_total",
			Help: "Total number of per-tick ownership claim attempts",
		},
		[]string{"ingester", "result"}, // result: won, lost, skipped, enqueued
	)

	// IngestersHealthy reports current health per ingester (1=healthy,
	// 0=unhealthy) for registry introspection (spec.md §7).
	IngestersHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chomp_ingester_healthy",
			Help: "Whether an ingester is currently healthy (1) or unhealthy (0)",
		},
		[]string{"ingester"},
	)

	// ConsecutiveFailures tracks the retry-budget counter per ingester.
	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chomp_ingester_consecutive_failures",
			Help: "Consecutive tick failures for an ingester",
		},
		[]string{"ingester"},
	)

	// LoaderRequestDuration measures per-request loader latency
	// (spec.md §4.3: RequestVitals.latency).
	LoaderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chomp_loader_request_duration_seconds",
			Help:    "Loader request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"kind"},
	)

	// LoaderBytes tracks payload size per loader request.
	LoaderBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chomp_loader_bytes",
			Help:    "Loader response payload size in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
		[]string{"kind"},
	)

	// LoaderErrors counts loader failures per kind and reason.
	LoaderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_loader_errors_total",
			Help: "Total number of loader failures",
		},
		[]string{"kind", "reason"},
	)

	// TransformerFieldErrors counts Phase 2/3 field-level failures
	// (spec.md §7: selection, transform, coercion errors are
	// tick-level, not fatal).
	TransformerFieldErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_transformer_field_errors_total",
			Help: "Total number of field-level transformer failures",
		},
		[]string{"ingester", "field", "phase"}, // phase: transform, handler, select
	)

	// StoreWrites counts successful store writes per ingester and
	// resource type.
	StoreWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_store_writes_total",
			Help: "Total number of successful store writes",
		},
		[]string{"ingester", "resource_type"},
	)

	// StoreWriteDuration measures TSDB insert latency.
	StoreWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chomp_store_write_duration_seconds",
			Help:    "TSDB write duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"ingester"},
	)

	// PublishTotal counts pub/sub broadcasts per ingester.
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_publish_total",
			Help: "Total number of pub/sub broadcasts",
		},
		[]string{"ingester", "status"},
	)

	// WorkerPoolActive reports the number of jobs currently running in
	// the bounded worker pool (spec.md §2: max_jobs).
	WorkerPoolActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chomp_worker_pool_active",
			Help: "Number of tick jobs currently executing",
		},
	)

	// CacheErrors counts cache round-trip failures by operation.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chomp_cache_errors_total",
			Help: "Total number of cache operation failures",
		},
		[]string{"operation"},
	)
)

// RecordTick records the outcome and duration of a completed tick.
func RecordTick(ingesterName, status string, duration float64) {
	TicksTotal.WithLabelValues(ingesterName, status).Inc()
	TickDuration.WithLabelValues(ingesterName, status).Observe(duration)
}

// RecordClaim records a per-tick ownership claim attempt.
func RecordClaim(ingesterName, result string) {
	ClaimsTotal.WithLabelValues(ingesterName, result).Inc()
}

// RecordHealth updates the gauge pair backing an ingester's registry
// health fields.
func RecordHealth(ingesterName string, healthy bool, consecutiveFails int) {
	if healthy {
		IngestersHealthy.WithLabelValues(ingesterName).Set(1)
	} else {
		IngestersHealthy.WithLabelValues(ingesterName).Set(0)
	}
	ConsecutiveFailures.WithLabelValues(ingesterName).Set(float64(consecutiveFails))
}

// RecordLoaderRequest records one loader round-trip.
func RecordLoaderRequest(kind string, duration float64, bytes int) {
	LoaderRequestDuration.WithLabelValues(kind).Observe(duration)
	LoaderBytes.WithLabelValues(kind).Observe(float64(bytes))
}

// RecordLoaderError records a loader failure.
func RecordLoaderError(kind, reason string) {
	LoaderErrors.WithLabelValues(kind, reason).Inc()
}

// RecordFieldError records a Phase 2/3 field-level transformer failure.
func RecordFieldError(ingesterName, field, phase string) {
	TransformerFieldErrors.WithLabelValues(ingesterName, field, phase).Inc()
}

// RecordStoreWrite records a successful TSDB write.
func RecordStoreWrite(ingesterName, resourceType string, duration float64) {
	StoreWrites.WithLabelValues(ingesterName, resourceType).Inc()
	StoreWriteDuration.WithLabelValues(ingesterName).Observe(duration)
}

// RecordPublish records a pub/sub broadcast attempt.
func RecordPublish(ingesterName, status string) {
	PublishTotal.WithLabelValues(ingesterName, status).Inc()
}

// RecordCacheError records a cache operation failure.
func RecordCacheError(operation string) {
	CacheErrors.WithLabelValues(operation).Inc()
}
