// Package metrics exposes run counters on a private Prometheus
// registry. All methods are nil-safe so callers can pass a nil
// *Metrics to disable collection.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the runtime's collectors.
type Metrics struct {
	registry *prometheus.Registry

	recordsProcessed *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	rollbackOps      prometheus.Counter
	stepDuration     *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sluice",
			Name:      "records_processed_total",
			Help:      "Records processed by load steps, partitioned by outcome.",
		}, []string{"pipeline", "outcome"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sluice",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status.",
		}, []string{"pipeline", "status"}),
		rollbackOps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sluice",
			Name:      "rollback_operations_total",
			Help:      "Journal entries undone by rollbacks.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sluice",
			Name:      "step_duration_seconds",
			Help:      "Wall-clock duration of executed steps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"pipeline", "step_type"}),
	}

	m.registry.MustRegister(m.recordsProcessed, m.runsTotal, m.rollbackOps, m.stepDuration)
	return m
}

// Registry exposes the underlying registry for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRecord counts one record outcome: succeeded, failed or skipped.
func (m *Metrics) ObserveRecord(pipeline, outcome string) {
	if m == nil {
		return
	}
	m.recordsProcessed.WithLabelValues(pipeline, outcome).Inc()
}

// ObserveRun counts a run reaching a terminal (or paused) status.
func (m *Metrics) ObserveRun(pipeline, status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(pipeline, status).Inc()
}

// ObserveRollback counts journal entries undone.
func (m *Metrics) ObserveRollback(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rollbackOps.Add(float64(n))
}

// ObserveStep records one step's duration.
func (m *Metrics) ObserveStep(pipeline, stepType string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(pipeline, stepType).Observe(d.Seconds())
}
