package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks completed requests by outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of completed requests",
		},
		[]string{"outcome"},
	)

	// RetriesTotal tracks retry attempts per error category
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"category"},
	)

	// FallbackAttemptsTotal tracks fallback chain attempts per strategy
	FallbackAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fallback_attempts_total",
			Help: "Total number of fallback strategy attempts",
		},
		[]string{"strategy", "result"},
	)

	// RequestLatency tracks end-to-end request latency
	RequestLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_request_latency_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// QueueDepth tracks the number of requests waiting in the queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_queue_depth",
			Help: "Number of requests waiting in the queue",
		},
	)

	// ConnectionQuality tracks the current connection grade (0=unknown,
	// 1=excellent, 2=good, 3=slow, 4=poor)
	ConnectionQuality = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connection_quality",
			Help: "Current connection quality grade",
		},
	)

	// ConnectionStatus tracks the health monitor state (0=disconnected,
	// 1=connecting, 2=connected, 3=error)
	ConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connection_status",
			Help: "Current connection health state",
		},
	)

	// HealthChecksTotal tracks health probes by result
	HealthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_health_checks_total",
			Help: "Total number of health probes",
		},
		[]string{"result"},
	)
)
