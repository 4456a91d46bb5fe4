package metrics

import "github.com/prometheus/client_golang/prometheus"

// AuditMetrics implements the audit recorder's observation interface.
type AuditMetrics struct {
	recorded    prometheus.Counter
	dropped     prometheus.Counter
	writeErrors prometheus.Counter
}

func newAuditMetrics(ns string, reg *prometheus.Registry) *AuditMetrics {
	m := &AuditMetrics{
		recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "records_total",
			Help:      "Audit records written to storage.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "records_dropped_total",
			Help:      "Audit records dropped because the recorder buffer was full.",
		}),
		writeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Audit storage writes that failed.",
		}),
	}
	reg.MustRegister(m.recorded, m.dropped, m.writeErrors)
	return m
}

func (m *AuditMetrics) IncRecorded() {
	if m == nil {
		return
	}
	m.recorded.Inc()
}

func (m *AuditMetrics) IncDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *AuditMetrics) IncWriteError() {
	if m == nil {
		return
	}
	m.writeErrors.Inc()
}
