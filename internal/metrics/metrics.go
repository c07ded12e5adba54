package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	UnitsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_units_generated_total",
			Help: "Total number of work units created by stage.",
		},
		[]string{"stage"},
	)

	UnitsDuplicateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_units_duplicate_total",
			Help: "Total number of parameter tuples skipped because a work unit already exists.",
		},
		[]string{"stage"},
	)

	UnitsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_units_submitted_total",
			Help: "Total number of work units dispatched to the cluster by stage.",
		},
		[]string{"stage"},
	)

	SubmitAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_submit_attempts_total",
			Help: "Total number of cluster submission attempts by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	TasksGatheredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_tasks_gathered_total",
			Help: "Total number of gather attempts recorded by stage and status.",
		},
		[]string{"stage", "status"},
	)

	ResultRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_result_rows_total",
			Help: "Total number of fixed-width result rows ingested by kind (valid, sentinel).",
		},
		[]string{"stage", "kind"},
	)

	GatherSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_gather_skipped_total",
			Help: "Total number of job directories skipped during gather by reason.",
		},
		[]string{"stage", "reason"},
	)

	GatherDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweep_gather_duration_seconds",
			Help:    "Duration of gather passes in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)

	Units = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sweep_units",
			Help: "Number of work units per stage and status at the end of the last pass.",
		},
		[]string{"stage", "status"},
	)

	registerOnce sync.Once
)

// Register registers all sweep metrics with the default Prometheus
// registry. It is safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			UnitsGeneratedTotal,
			UnitsDuplicateTotal,
			UnitsSubmittedTotal,
			SubmitAttemptsTotal,
			TasksGatheredTotal,
			ResultRowsTotal,
			GatherSkippedTotal,
			GatherDurationSeconds,
			Units,
		)
	})
}
