package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"praetor-hq/tribune/pkg/snapshot"
)

// CacheMetrics implements the context cache's observation interface.
type CacheMetrics struct {
	lookups *prometheus.CounterVec
}

func newCacheMetrics(ns string, reg *prometheus.Registry) *CacheMetrics {
	m := &CacheMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Context snapshot lookups by resolution source.",
		}, []string{"source"}),
	}
	reg.MustRegister(m.lookups)
	return m
}

// ObserveLookup counts a snapshot resolution by source (hot, upstream,
// fallback, default).
func (m *CacheMetrics) ObserveLookup(source snapshot.Source) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(string(source)).Inc()
}
