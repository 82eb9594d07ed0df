package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClipCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_clip_created_total",
		Help: "no. of clips created",
	})
	ClipRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_clip_retrieved_total",
		Help: "no. of clips retrieved",
	})
	CodeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_code_conflicts_total",
		Help: "no. of short code collisions recovered by retry",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_cache_misses_total",
		Help: "no. of cache misses",
	})
	SweepCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_sweep_cycles_total",
		Help: "no. of expiration sweep cycles",
	})
	SweptClips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_swept_clips_total",
		Help: "no. of expired clips deleted by the sweeper",
	})
	ViewFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clipd_view_flushes_total",
		Help: "no. of view counter flush batches",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipd_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
)
