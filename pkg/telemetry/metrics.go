package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Submitter ───────────────────────────────────────────────────────────────

	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nrvna",
		Subsystem: "submit",
		Name:      "jobs_total",
		Help:      "Total jobs published into the workspace, labelled by job type.",
	}, []string{"type"})

	// ─── Scanner ─────────────────────────────────────────────────────────────────

	ScannerBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nrvna",
		Subsystem: "scanner",
		Name:      "batches_total",
		Help:      "Total scan iterations over input/ready.",
	})

	ScannerJobsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nrvna",
		Subsystem: "scanner",
		Name:      "jobs_dispatched_total",
		Help:      "Total job IDs handed to the worker pool.",
	})

	// ─── Worker pool ─────────────────────────────────────────────────────────────

	PoolQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nrvna",
		Subsystem: "pool",
		Name:      "queue_depth",
		Help:      "Job IDs queued and not yet picked up by a worker.",
	})

	WorkerJobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nrvna",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Total process calls, labelled by outcome.",
	}, []string{"outcome"})

	WorkerJobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nrvna",
		Subsystem: "worker",
		Name:      "jobs_inflight",
		Help:      "Jobs currently being executed.",
	})

	WorkerJobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nrvna",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Job execution time in seconds, from claim to the end of inference.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"type"})

	// ─── Recovery ────────────────────────────────────────────────────────────────

	RecoveredOrphans = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nrvna",
		Subsystem: "recovery",
		Name:      "orphans_total",
		Help:      "Jobs re-queued from processing/ at daemon start.",
	})
)
