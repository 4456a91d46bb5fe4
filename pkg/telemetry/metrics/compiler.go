package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CompilerMetrics implements the compiler's observation interface.
type CompilerMetrics struct {
	compiles *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newCompilerMetrics(ns string, reg *prometheus.Registry) *CompilerMetrics {
	m := &CompilerMetrics{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "compiler",
			Name:      "compiles_total",
			Help:      "Graph compilations by tenant, decision type, and outcome.",
		}, []string{"tenant", "decision_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "compiler",
			Name:      "compile_duration_seconds",
			Help:      "Wall time of the full compilation pipeline.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.compiles, m.duration)
	return m
}

// ObserveCompile records a compilation attempt. Outcome is "compiled" or
// "error".
func (m *CompilerMetrics) ObserveCompile(tenant, decisionType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(tenant, decisionType, outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}
