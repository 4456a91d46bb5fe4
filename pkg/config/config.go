package config

import "time"

// Config is the root configuration for the tribune service.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Engine configures decision execution.
	Engine EngineConfig `yaml:"engine"`

	// Registry configures blueprint and activation persistence.
	Registry RegistryConfig `yaml:"registry"`

	// Cache configures the context snapshot cache.
	Cache CacheConfig `yaml:"cache"`

	// Override configures signed per-request context overrides.
	Override OverrideConfig `yaml:"override"`

	// Audit configures decision audit recording and retention.
	Audit AuditConfig `yaml:"audit"`

	// Watcher configures the graph directory watcher.
	Watcher WatcherConfig `yaml:"watcher"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// ListenAddress is the host:port the server binds to.
	ListenAddress string `yaml:"listen_address"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes bounds request bodies (graph documents included).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// EngineConfig configures the decision engine.
type EngineConfig struct {
	// ExecuteTimeout is the per-request evaluation deadline.
	ExecuteTimeout time.Duration `yaml:"execute_timeout"`

	// FailSafeDefaults controls recovery from resolution failures. When
	// true a missing blueprint or unreachable context yields a
	// conservative no-decision / default outcome; when false the error
	// surfaces to the caller.
	FailSafeDefaults *bool `yaml:"fail_safe_defaults"`
}

// RegistryConfig configures blueprint storage.
type RegistryConfig struct {
	// Backend selects the store: "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// BusyTimeout is the sqlite busy handler timeout.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// CacheConfig configures the context snapshot cache.
type CacheConfig struct {
	// TTL is how long a hot entry serves reads before revalidation.
	TTL time.Duration `yaml:"ttl"`

	// RehydrateInterval rate-limits background rehydration per entity.
	RehydrateInterval time.Duration `yaml:"rehydrate_interval"`
}

// OverrideConfig configures signed override tokens.
type OverrideConfig struct {
	// Enabled turns override token verification on. When disabled,
	// requests carrying a token are rejected.
	Enabled bool `yaml:"enabled"`

	// SigningKey is the HS256 shared secret. Required when enabled.
	SigningKey string `yaml:"signing_key"`

	// Issuer and Audience are checked against token claims.
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// AuditConfig configures audit recording.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend selects the storage: "memory" or "sqlite".
	Backend string `yaml:"backend"`

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// Buffer is the async recorder channel capacity.
	Buffer int `yaml:"buffer"`

	// WriteTimeout bounds a single storage write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig configures audit record pruning.
type RetentionConfig struct {
	// MaxAge drops records older than this. Zero disables age pruning.
	MaxAge time.Duration `yaml:"max_age"`

	// MaxRecords caps the record count, oldest dropped first. Zero
	// disables the cap.
	MaxRecords int `yaml:"max_records"`

	// Schedule is a cron expression for the pruning job. Empty disables
	// scheduled pruning.
	Schedule string `yaml:"schedule"`
}

// WatcherConfig configures the graph directory watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir is the directory of graph documents to watch.
	Dir string `yaml:"dir"`

	// Debounce coalesces bursts of filesystem events.
	Debounce time.Duration `yaml:"debounce"`

	// Activate controls whether successful compiles are activated
	// immediately.
	Activate *bool `yaml:"activate"`
}

// TelemetryConfig groups observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`

	// AddSource includes source file and line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the scrape endpoint path.
	Path string `yaml:"path"`

	Namespace string `yaml:"namespace"`

	// ExecuteDurationBuckets are histogram buckets, in seconds, for
	// decision execution latency.
	ExecuteDurationBuckets []float64 `yaml:"execute_duration_buckets"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported as the OTel service resource.
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	// Insecure disables transport security to the collector.
	Insecure bool `yaml:"insecure"`

	// Sampler is one of always, never, ratio.
	Sampler string `yaml:"sampler"`

	// SampleRatio applies when Sampler is "ratio".
	SampleRatio float64 `yaml:"sample_ratio"`

	// Timeout bounds exporter dial and export calls.
	Timeout time.Duration `yaml:"timeout"`
}
