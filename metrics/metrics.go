// Package metrics holds the Prometheus collectors for pipeline runs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// RunsTotal counts pipeline runs by result (success, partial, failed, skipped).
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback_radar",
		Name:      "pipeline_runs_total",
		Help:      "Total number of pipeline runs, labeled by result.",
	}, []string{"result"})

	// StageFailuresTotal counts recorded stage errors.
	StageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback_radar",
		Name:      "stage_failures_total",
		Help:      "Total number of stage errors recorded during pipeline runs, labeled by stage.",
	}, []string{"stage"})

	// ClassificationsTotal counts per-item classification outcomes (ok, degraded, cached).
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedback_radar",
		Name:      "classifications_total",
		Help:      "Total number of classified items, labeled by outcome.",
	}, []string{"outcome"})

	// HighSignalItems is the high-signal count of the last run.
	HighSignalItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "feedback_radar",
		Name:      "high_signal_items",
		Help:      "Number of high-signal items in the most recent run.",
	})

	// HealthScore is the health score of the last comparable run.
	HealthScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "feedback_radar",
		Name:      "health_score",
		Help:      "Health score of the most recent run that had a previous snapshot.",
	})

	// RunDurationSeconds is end-to-end pipeline run time.
	RunDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "feedback_radar",
		Name:      "run_duration_seconds",
		Help:      "End-to-end duration of a pipeline run.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})
)

// Register registers the collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			RunsTotal,
			StageFailuresTotal,
			ClassificationsTotal,
			HighSignalItems,
			HealthScore,
			RunDurationSeconds,
		)
	})
}
