package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"praetor-hq/tribune/pkg/config"
)

// Collector owns the Prometheus registry and all tribune metric structs.
// A nil Collector is safe: every accessor returns nil, and the subsystems
// treat a nil sink as a noop.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	compiler *CompilerMetrics
	runtime  *RuntimeMetrics
	cache    *CacheMetrics
	audit    *AuditMetrics
	server   *ServerMetrics
}

// NewCollector builds the metric structs and registers them on the given
// registry. A nil registry gets a fresh one, with the standard Go and
// process collectors included.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = "tribune"
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		compiler: newCompilerMetrics(ns, registry),
		runtime:  newRuntimeMetrics(ns, cfg.ExecuteDurationBuckets, registry),
		cache:    newCacheMetrics(ns, registry),
		audit:    newAuditMetrics(ns, registry),
		server:   newServerMetrics(ns, registry),
	}
}

// Registry exposes the underlying registry for additional registrations.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns the scrape handler for the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Compiler() *CompilerMetrics {
	if c == nil {
		return nil
	}
	return c.compiler
}

func (c *Collector) Runtime() *RuntimeMetrics {
	if c == nil {
		return nil
	}
	return c.runtime
}

func (c *Collector) Cache() *CacheMetrics {
	if c == nil {
		return nil
	}
	return c.cache
}

func (c *Collector) Audit() *AuditMetrics {
	if c == nil {
		return nil
	}
	return c.audit
}

func (c *Collector) Server() *ServerMetrics {
	if c == nil {
		return nil
	}
	return c.server
}
