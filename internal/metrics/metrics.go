package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dayplan"

var (
	// MaterializedInstances counts (date, template) units by outcome: created, existing
	MaterializedInstances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materialized_instances_total",
			Help:      "Task instances ensured by materialization, by outcome",
		},
		[]string{"outcome"},
	)

	// MaterializationFailures counts (date, template) units that failed to persist
	MaterializationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materialization_failures_total",
			Help:      "Materialization units aborted by a storage failure",
		},
	)

	// MaterializationDuration observes whole materialization calls
	MaterializationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "materialization_duration_seconds",
			Help:      "Duration of materialization calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"form"}, // form: date, range, prefetch
	)

	// PrefetchJobs counts prefetch requests by outcome: enqueued, deduplicated, processed, failed
	PrefetchJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_jobs_total",
			Help:      "Prefetch window jobs by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordMaterialization records the outcome counts of one materialization call
func RecordMaterialization(form string, created, existing, failed int, duration time.Duration) {
	MaterializationDuration.WithLabelValues(form).Observe(duration.Seconds())
	if created > 0 {
		MaterializedInstances.WithLabelValues("created").Add(float64(created))
	}
	if existing > 0 {
		MaterializedInstances.WithLabelValues("existing").Add(float64(existing))
	}
	if failed > 0 {
		MaterializationFailures.Add(float64(failed))
	}
}

// RecordPrefetch increments the prefetch counter for outcome
func RecordPrefetch(outcome string) {
	PrefetchJobs.WithLabelValues(outcome).Inc()
}
