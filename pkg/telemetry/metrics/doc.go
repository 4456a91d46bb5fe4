// Package metrics defines tribune's Prometheus instrumentation: one metric
// struct per concern (compiler, runtime, cache, audit, HTTP), all registered
// on a single injected registry by the Collector. The metric structs
// implement the observation interfaces their subjects declare, so the
// instrumented packages never import Prometheus themselves.
package metrics
