package config

import "time"

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any fields that are unset.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8710"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 4 << 20
	}

	if cfg.Engine.ExecuteTimeout == 0 {
		cfg.Engine.ExecuteTimeout = 50 * time.Millisecond
	}
	if cfg.Engine.FailSafeDefaults == nil {
		cfg.Engine.FailSafeDefaults = boolPtr(true)
	}

	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = "sqlite"
	}
	if cfg.Registry.SQLitePath == "" {
		cfg.Registry.SQLitePath = "tribune-registry.db"
	}
	if cfg.Registry.BusyTimeout == 0 {
		cfg.Registry.BusyTimeout = 5 * time.Second
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 15 * time.Second
	}
	if cfg.Cache.RehydrateInterval == 0 {
		cfg.Cache.RehydrateInterval = 30 * time.Second
	}

	if cfg.Override.Issuer == "" {
		cfg.Override.Issuer = "tribune"
	}
	if cfg.Override.Audience == "" {
		cfg.Override.Audience = "tribune-runtime"
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = "sqlite"
	}
	if cfg.Audit.SQLitePath == "" {
		cfg.Audit.SQLitePath = "tribune-audit.db"
	}
	if cfg.Audit.Buffer == 0 {
		cfg.Audit.Buffer = 1000
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = 5 * time.Second
	}

	if cfg.Watcher.Debounce == 0 {
		cfg.Watcher.Debounce = 500 * time.Millisecond
	}
	if cfg.Watcher.Activate == nil {
		cfg.Watcher.Activate = boolPtr(true)
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}

	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "tribune"
	}
	if len(cfg.Telemetry.Metrics.ExecuteDurationBuckets) == 0 {
		// Execution is budgeted in single-digit milliseconds.
		cfg.Telemetry.Metrics.ExecuteDurationBuckets = []float64{
			0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
		}
	}

	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = "tribune"
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = "ratio"
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = 0.1
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = 10 * time.Second
	}
}

func boolPtr(v bool) *bool { return &v }
