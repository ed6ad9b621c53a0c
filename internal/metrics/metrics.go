// Package metrics exposes Prometheus instrumentation for the import
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts import jobs by terminal status.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_jobs_total",
		Help: "Import jobs finished, by terminal status.",
	}, []string{"status"})

	// RowsTotal counts processed rows by outcome.
	RowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Rows processed across all import jobs, by outcome.",
	}, []string{"result"})

	// DispatchDuration observes the wall time of one batch dispatch,
	// including retries.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "erp_dispatch_duration_seconds",
		Help:    "Duration of one batch dispatch to the ERP, retries included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// BreakerState reports each endpoint's circuit breaker position
	// (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "erp_circuit_breaker_state",
		Help: "Circuit breaker state per ERP endpoint (0 closed, 1 open, 2 half-open).",
	}, []string{"endpoint"})

	// ActiveJobs tracks jobs currently in a non-terminal state.
	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "import_jobs_active",
		Help: "Import jobs currently pending, validating or processing.",
	})

	// WSConnections tracks open progress websockets.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_active",
		Help: "Open websocket connections on the progress feed.",
	})
)

// Row outcomes.
const (
	RowSucceeded = "succeeded"
	RowFailed    = "failed"
)
