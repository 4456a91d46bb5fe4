package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RuntimeMetrics implements the engine's observation interface.
type RuntimeMetrics struct {
	executes       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	guardFaults    prometheus.Counter
	maskRecomputes prometheus.Counter
}

func newRuntimeMetrics(ns string, buckets []float64, reg *prometheus.Registry) *RuntimeMetrics {
	if len(buckets) == 0 {
		buckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
	}
	m := &RuntimeMetrics{
		executes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "runtime",
			Name:      "executes_total",
			Help:      "Decision executions by tenant, decision type, and outcome kind.",
		}, []string{"tenant", "decision_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "runtime",
			Name:      "execute_duration_seconds",
			Help:      "End-to-end decision execution latency.",
			Buckets:   buckets,
		}, []string{"outcome"}),
		guardFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "runtime",
			Name:      "guard_faults_total",
			Help:      "Guard evaluations that faulted and were treated as false.",
		}),
		maskRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "runtime",
			Name:      "mask_recomputes_total",
			Help:      "Entity masks recomputed because of dictionary drift.",
		}),
	}
	reg.MustRegister(m.executes, m.duration, m.guardFaults, m.maskRecomputes)
	return m
}

// ObserveExecute records one completed execution.
func (m *RuntimeMetrics) ObserveExecute(tenant, decisionType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.executes.WithLabelValues(tenant, decisionType, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddGuardFaults adds contained guard faults from one execution.
func (m *RuntimeMetrics) AddGuardFaults(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.guardFaults.Add(float64(n))
}

// IncMaskRecompute counts one dictionary-drift mask recomputation.
func (m *RuntimeMetrics) IncMaskRecompute() {
	if m == nil {
		return
	}
	m.maskRecomputes.Inc()
}
