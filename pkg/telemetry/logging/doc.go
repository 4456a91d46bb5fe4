// Package logging configures the process-wide slog logger from the
// telemetry configuration: level and format parsing, optional source
// locations, and helpers for request-scoped loggers carried in contexts.
package logging
