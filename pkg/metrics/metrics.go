package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tag_cache_hits_total",
			Help: "Total number of tag registry cache hits",
		},
		[]string{"layer"}, // "l1" or "l2"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tag_cache_misses_total",
			Help: "Total number of tag registry cache misses",
		},
		[]string{"layer"},
	)

	// Codec metrics
	CodecErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tag_codec_errors_total",
			Help: "Total number of rejected encode/decode calls",
		},
		[]string{"operation"}, // "encode" or "decode"
	)

	Reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tag_reservations_total",
			Help: "Total number of reserved tags",
		},
		[]string{"generator"}, // "counter" or "hash"
	)

	ReservationCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tag_reservation_collisions_total",
			Help: "Generated tag ids that were already registered",
		},
	)

	// Request metrics
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tag_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route", "status"},
	)

	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tag_requests_total",
			Help: "Total number of requests",
		},
		[]string{"method", "route", "status"},
	)

	// Database metrics
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tag_database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)
