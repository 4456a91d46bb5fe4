package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks a fully defaulted configuration for contradictions and
// unusable values. It returns the first error found.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Engine.ExecuteTimeout <= 0 {
		return fmt.Errorf("engine.execute_timeout must be positive, got %s", cfg.Engine.ExecuteTimeout)
	}

	switch cfg.Registry.Backend {
	case "memory":
	case "sqlite":
		if cfg.Registry.SQLitePath == "" {
			return fmt.Errorf("registry.sqlite_path required for sqlite backend")
		}
	default:
		return fmt.Errorf("registry.backend must be memory or sqlite, got %q", cfg.Registry.Backend)
	}

	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", cfg.Cache.TTL)
	}

	if cfg.Override.Enabled && cfg.Override.SigningKey == "" {
		return fmt.Errorf("override.signing_key required when overrides are enabled")
	}

	if cfg.Audit.Enabled {
		switch cfg.Audit.Backend {
		case "memory":
		case "sqlite":
			if cfg.Audit.SQLitePath == "" {
				return fmt.Errorf("audit.sqlite_path required for sqlite backend")
			}
		default:
			return fmt.Errorf("audit.backend must be memory or sqlite, got %q", cfg.Audit.Backend)
		}
		if cfg.Audit.Buffer <= 0 {
			return fmt.Errorf("audit.buffer must be positive, got %d", cfg.Audit.Buffer)
		}
	}
	if s := cfg.Audit.Retention.Schedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("audit.retention.schedule: invalid cron expression %q: %w", s, err)
		}
	}
	if cfg.Audit.Retention.MaxRecords < 0 {
		return fmt.Errorf("audit.retention.max_records must not be negative, got %d", cfg.Audit.Retention.MaxRecords)
	}

	if cfg.Watcher.Enabled && cfg.Watcher.Dir == "" {
		return fmt.Errorf("watcher.dir required when the watcher is enabled")
	}

	switch strings.ToLower(cfg.Telemetry.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be debug, info, warn, or error, got %q", cfg.Telemetry.Logging.Level)
	}
	switch strings.ToLower(cfg.Telemetry.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be json or text, got %q", cfg.Telemetry.Logging.Format)
	}

	for i, b := range cfg.Telemetry.Metrics.ExecuteDurationBuckets {
		if b <= 0 {
			return fmt.Errorf("telemetry.metrics.execute_duration_buckets[%d] must be positive, got %v", i, b)
		}
		if i > 0 && b <= cfg.Telemetry.Metrics.ExecuteDurationBuckets[i-1] {
			return fmt.Errorf("telemetry.metrics.execute_duration_buckets must be strictly increasing")
		}
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Sampler {
		case "always", "never":
		case "ratio":
			r := cfg.Telemetry.Tracing.SampleRatio
			if r < 0 || r > 1 {
				return fmt.Errorf("telemetry.tracing.sample_ratio must be in [0,1], got %v", r)
			}
		default:
			return fmt.Errorf("telemetry.tracing.sampler must be always, never, or ratio, got %q", cfg.Telemetry.Tracing.Sampler)
		}
		if cfg.Telemetry.Tracing.Endpoint == "" {
			return fmt.Errorf("telemetry.tracing.endpoint required when tracing is enabled")
		}
	}

	return nil
}
