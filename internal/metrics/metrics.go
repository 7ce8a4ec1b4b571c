package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks API latency per route and status class
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pledge_http_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"method", "route", "status"},
	)

	// CoordinatorFailures counts failed writes of a pledge by phase.
	// phase="2" is the reconciliation backlog.
	CoordinatorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_coordinator_failures_total",
			Help: "Failed fulfillment writes by coordinator phase",
		},
		[]string{"phase"},
	)

	ReconcileRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_reconcile_repairs_total",
			Help: "References added or removed by reconciliation",
		},
		[]string{"action"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pledge_cache_invalidations_total",
			Help: "Cache invalidations by entity kind and origin",
		},
		[]string{"kind", "origin"},
	)
)

func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
}

func RecordCoordinatorFailure(phase string) {
	CoordinatorFailures.WithLabelValues(phase).Inc()
}

func RecordRepair(action string, n int) {
	if n > 0 {
		ReconcileRepairs.WithLabelValues(action).Add(float64(n))
	}
}

func RecordInvalidation(kind, origin string) {
	CacheInvalidations.WithLabelValues(kind, origin).Inc()
}
