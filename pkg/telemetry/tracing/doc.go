// Package tracing sets up OpenTelemetry tracing for tribune with an OTLP
// gRPC exporter and a parent-based sampler. When tracing is disabled the
// tracer is a noop.
package tracing
