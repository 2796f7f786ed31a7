// Package metrics exposes the Prometheus collectors for the bridge.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "chatbridge"

var (
	// TurnsTotal counts processed turns per webhook route.
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of inbound turns processed",
		},
		[]string{"route", "status"}, // status: ok, invalid_payload, model_error, store_error
	)

	// TurnDuration is a histogram of full-pipeline turn duration.
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of the full turn pipeline in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	// ModelRequestsTotal counts model backend calls.
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total number of model backend calls",
		},
		[]string{"route", "status"}, // status: ok, timeout, rejected, malformed
	)

	// ThreadEvictionsTotal counts conversations evicted to stay within the
	// store's conversation cap.
	ThreadEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_evictions_total",
			Help:      "Total number of conversations evicted by capacity bounds",
		},
		[]string{"store"},
	)
)

func init() {
	prometheus.MustRegister(
		TurnsTotal,
		TurnDuration,
		ModelRequestsTotal,
		ThreadEvictionsTotal,
	)
}
