// Package telemetry groups tribune's observability subsystems.
//
//   - logging: slog setup (level and format parsing, component loggers)
//   - metrics: Prometheus metric structs per concern, on an injected registry
//   - tracing: OpenTelemetry tracing with an OTLP gRPC exporter
//   - health: liveness and readiness endpoints
//
// Subsystems are constructed explicitly from config sections and passed to
// the components that use them; nothing here is a process-wide singleton
// except the slog default logger, which logging.Setup installs.
package telemetry
