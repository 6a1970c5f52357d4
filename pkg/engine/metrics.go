package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EcsyncRunsTotal counts finished sync runs by terminal status
	EcsyncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecsync_runs_total",
			Help: "Total number of sync runs by terminal status",
		},
		[]string{"status"},
	)

	// EcsyncRecordsTotal counts processed records by outcome
	EcsyncRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecsync_records_total",
			Help: "Total number of records processed by outcome status",
		},
		[]string{"status"},
	)

	// EcsyncCycleRecords tracks cycle membership in the latest run
	EcsyncCycleRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecsync_cycle_records",
			Help: "Employees in dependency cycles in the latest run",
		},
	)

	// EcsyncMissingDeps tracks missing references in the latest run
	EcsyncMissingDeps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecsync_missing_dependencies",
			Help: "Missing dependency references in the latest run",
		},
	)

	// EcsyncBatchSeconds observes per-batch creation latency
	EcsyncBatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecsync_batch_duration_seconds",
			Help:    "Wall time spent creating one batch",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(EcsyncRunsTotal)
	prometheus.MustRegister(EcsyncRecordsTotal)
	prometheus.MustRegister(EcsyncCycleRecords)
	prometheus.MustRegister(EcsyncMissingDeps)
	prometheus.MustRegister(EcsyncBatchSeconds)
}
