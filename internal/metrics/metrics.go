package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30, 120, 300},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "upstream_requests_total",
		Help:      "Requests to the debrid service and the stream index by operation and result.",
	}, []string{"upstream", "operation", "result"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
	}, []string{"upstream", "operation"})

	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "resolutions_total",
		Help:      "Finished resolutions by source kind and outcome.",
	}, []string{"source", "outcome"})

	ResolutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "resolution_duration_seconds",
		Help:      "End-to-end resolution duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"source"})

	ResolutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "resolver",
		Name:      "resolutions_in_flight",
		Help:      "Resolutions currently running.",
	})

	HosterFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "hoster_fallbacks_total",
		Help:      "Hoster rejections retried through the magnet path.",
	})

	TorrentWaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "resolver",
		Name:      "torrent_wait_duration_seconds",
		Help:      "Time from magnet submission to a terminal torrent state.",
		Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})

	SearchCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "search_cache_hits_total",
		Help:      "Total number of stream search cache hits.",
	})

	SearchCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "search_cache_misses_total",
		Help:      "Total number of stream search cache misses.",
	})

	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client limiter.",
	}, []string{"path"})

	BatchItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolver",
		Name:      "batch_items_total",
		Help:      "Batch queue items by final status.",
	}, []string{"status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		ResolutionsTotal,
		ResolutionDuration,
		ResolutionsInFlight,
		HosterFallbacksTotal,
		TorrentWaitDuration,
		SearchCacheHitsTotal,
		SearchCacheMissesTotal,
		RateLimitedTotal,
		BatchItemsTotal,
	)
}
