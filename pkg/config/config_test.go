package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.FailSafeDefaults == nil || !*cfg.Engine.FailSafeDefaults {
		t.Errorf("fail-safe defaults should default to true")
	}
	if cfg.Cache.TTL != 15*time.Second {
		t.Errorf("cache TTL = %s, want 15s", cfg.Cache.TTL)
	}
	if cfg.Telemetry.Metrics.Namespace != "tribune" {
		t.Errorf("metrics namespace = %q, want tribune", cfg.Telemetry.Metrics.Namespace)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tribune.yaml")
	doc := `
server:
  listen_address: "0.0.0.0:9000"
engine:
  execute_timeout: 25ms
  fail_safe_defaults: false
registry:
  backend: memory
audit:
  enabled: true
  backend: memory
  retention:
    max_records: 5000
    schedule: "0 3 * * *"
telemetry:
  logging:
    level: debug
    format: text
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Engine.ExecuteTimeout != 25*time.Millisecond {
		t.Errorf("execute timeout = %s", cfg.Engine.ExecuteTimeout)
	}
	if cfg.Engine.FailSafeDefaults == nil || *cfg.Engine.FailSafeDefaults {
		t.Errorf("fail_safe_defaults: explicit false should survive defaulting")
	}
	if cfg.Audit.Retention.MaxRecords != 5000 {
		t.Errorf("retention max records = %d", cfg.Audit.Retention.MaxRecords)
	}
	// Defaults fill the gaps the file leaves.
	if cfg.Audit.Buffer != 1000 {
		t.Errorf("audit buffer = %d, want default 1000", cfg.Audit.Buffer)
	}
	if cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("logging format = %q", cfg.Telemetry.Logging.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRIBUNE_SERVER_LISTEN_ADDRESS", "127.0.0.1:7777")
	t.Setenv("TRIBUNE_ENGINE_EXECUTE_TIMEOUT", "10ms")
	t.Setenv("TRIBUNE_ENGINE_FAIL_SAFE_DEFAULTS", "false")
	t.Setenv("TRIBUNE_REGISTRY_BACKEND", "memory")
	t.Setenv("TRIBUNE_TELEMETRY_TRACING_SAMPLE_RATIO", "0.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:7777" {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Engine.ExecuteTimeout != 10*time.Millisecond {
		t.Errorf("execute timeout = %s", cfg.Engine.ExecuteTimeout)
	}
	if cfg.Engine.FailSafeDefaults == nil || *cfg.Engine.FailSafeDefaults {
		t.Errorf("fail_safe_defaults should be overridden to false")
	}
	if cfg.Registry.Backend != "memory" {
		t.Errorf("registry backend = %q", cfg.Registry.Backend)
	}
	if cfg.Telemetry.Tracing.SampleRatio != 0.5 {
		t.Errorf("sample ratio = %v", cfg.Telemetry.Tracing.SampleRatio)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen address", func(c *Config) { c.Server.ListenAddress = "" }},
		{"zero execute timeout", func(c *Config) { c.Engine.ExecuteTimeout = 0 }},
		{"unknown registry backend", func(c *Config) { c.Registry.Backend = "postgres" }},
		{"override without key", func(c *Config) { c.Override.Enabled = true }},
		{"audit without buffer", func(c *Config) { c.Audit.Enabled = true; c.Audit.Buffer = -1 }},
		{"bad cron schedule", func(c *Config) { c.Audit.Retention.Schedule = "not a schedule" }},
		{"watcher without dir", func(c *Config) { c.Watcher.Enabled = true }},
		{"unknown log level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }},
		{"unknown log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }},
		{"unsorted buckets", func(c *Config) {
			c.Telemetry.Metrics.ExecuteDurationBuckets = []float64{0.01, 0.005}
		}},
		{"ratio out of range", func(c *Config) {
			c.Telemetry.Tracing.Enabled = true
			c.Telemetry.Tracing.SampleRatio = 1.5
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("Validate accepted invalid config")
			}
		})
	}
}
