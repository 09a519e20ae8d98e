// Package metrics exposes Prometheus collectors for the screening core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts cache hits by tier ("fast", "durable").
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache hits by tier",
	}, []string{"tier"})

	// CacheMisses counts full cache misses.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache misses across both tiers",
	})

	// CachePromotions counts durable-to-fast promotions.
	CachePromotions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "cache",
		Name:      "promotions_total",
		Help:      "Values promoted from durable to fast tier",
	})

	// CacheEvictions counts fast-tier LRU evictions.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Fast-tier LRU evictions",
	})

	// CacheErrors counts durable-tier I/O errors (degraded to misses).
	CacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Durable-tier I/O errors degraded to cache misses",
	})

	// RateLimitWaits observes time spent waiting for a source token.
	RateLimitWaits = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "stockrun",
		Subsystem: "ratelimit",
		Name:      "wait_seconds",
		Help:      "Time spent acquiring rate-limit tokens",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"source"})

	// RateLimitTimeouts counts acquisitions that hit their deadline.
	RateLimitTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "ratelimit",
		Name:      "timeouts_total",
		Help:      "Rate-limit acquisitions that timed out",
	}, []string{"source"})

	// ComplianceVerdicts counts compliance outcomes by result class.
	ComplianceVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "compliance",
		Name:      "verdicts_total",
		Help:      "Compliance verdicts by result",
	}, []string{"result"})

	// ScreeningDuration observes full pipeline run duration.
	ScreeningDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stockrun",
		Subsystem: "pipeline",
		Name:      "run_seconds",
		Help:      "End-to-end screening run duration",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	// TickersProcessed counts per-ticker outcomes in stage 3
	// ("matched", "no_match", "skipped").
	TickersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "pipeline",
		Name:      "tickers_total",
		Help:      "Per-ticker stage-3 outcomes",
	}, []string{"outcome"})

	// ProviderRequests counts outbound provider calls by source and status.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockrun",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Outbound data-provider requests",
	}, []string{"source", "status"})
)
