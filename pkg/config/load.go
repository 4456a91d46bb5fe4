package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults,
// environment overrides, and validates the result. Environment variables
// follow the convention TRIBUNE_SECTION_FIELD
// (e.g. TRIBUNE_SERVER_LISTEN_ADDRESS) and always win over the file.
//
// An empty path loads defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envString("TRIBUNE_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("TRIBUNE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("TRIBUNE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("TRIBUNE_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("TRIBUNE_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	envDuration("TRIBUNE_ENGINE_EXECUTE_TIMEOUT", &cfg.Engine.ExecuteTimeout)
	envBoolPtr("TRIBUNE_ENGINE_FAIL_SAFE_DEFAULTS", &cfg.Engine.FailSafeDefaults)

	envString("TRIBUNE_REGISTRY_BACKEND", &cfg.Registry.Backend)
	envString("TRIBUNE_REGISTRY_SQLITE_PATH", &cfg.Registry.SQLitePath)
	envDuration("TRIBUNE_REGISTRY_BUSY_TIMEOUT", &cfg.Registry.BusyTimeout)

	envDuration("TRIBUNE_CACHE_TTL", &cfg.Cache.TTL)
	envDuration("TRIBUNE_CACHE_REHYDRATE_INTERVAL", &cfg.Cache.RehydrateInterval)

	envBool("TRIBUNE_OVERRIDE_ENABLED", &cfg.Override.Enabled)
	envString("TRIBUNE_OVERRIDE_SIGNING_KEY", &cfg.Override.SigningKey)
	envString("TRIBUNE_OVERRIDE_ISSUER", &cfg.Override.Issuer)
	envString("TRIBUNE_OVERRIDE_AUDIENCE", &cfg.Override.Audience)

	envBool("TRIBUNE_AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("TRIBUNE_AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("TRIBUNE_AUDIT_SQLITE_PATH", &cfg.Audit.SQLitePath)
	envInt("TRIBUNE_AUDIT_BUFFER", &cfg.Audit.Buffer)
	envDuration("TRIBUNE_AUDIT_RETENTION_MAX_AGE", &cfg.Audit.Retention.MaxAge)
	envInt("TRIBUNE_AUDIT_RETENTION_MAX_RECORDS", &cfg.Audit.Retention.MaxRecords)
	envString("TRIBUNE_AUDIT_RETENTION_SCHEDULE", &cfg.Audit.Retention.Schedule)

	envBool("TRIBUNE_WATCHER_ENABLED", &cfg.Watcher.Enabled)
	envString("TRIBUNE_WATCHER_DIR", &cfg.Watcher.Dir)
	envDuration("TRIBUNE_WATCHER_DEBOUNCE", &cfg.Watcher.Debounce)
	envBoolPtr("TRIBUNE_WATCHER_ACTIVATE", &cfg.Watcher.Activate)

	envString("TRIBUNE_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TRIBUNE_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TRIBUNE_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TRIBUNE_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TRIBUNE_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TRIBUNE_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TRIBUNE_TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	envFloat("TRIBUNE_TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(key string, dst **bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = &b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
