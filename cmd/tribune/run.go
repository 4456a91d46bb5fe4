package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"praetor-hq/tribune/pkg/audit"
	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/config"
	"praetor-hq/tribune/pkg/registry"
	"praetor-hq/tribune/pkg/replay"
	"praetor-hq/tribune/pkg/runtime"
	"praetor-hq/tribune/pkg/server"
	"praetor-hq/tribune/pkg/snapshot"
	"praetor-hq/tribune/pkg/telemetry/health"
	"praetor-hq/tribune/pkg/telemetry/logging"
	"praetor-hq/tribune/pkg/telemetry/metrics"
	"praetor-hq/tribune/pkg/telemetry/tracing"
	"praetor-hq/tribune/pkg/watcher"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tribune server",
	Long: `Start the tribune decision server.

Examples:
  # Start with defaults
  tribune run

  # Start with a config file
  tribune run --config /etc/tribune/config.yaml

  # Override the listen address
  tribune run --listen 0.0.0.0:8710

  # Validate config without starting
  tribune run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.Setup(&cfg.Telemetry.Logging)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	// Blueprint registry.
	var store registry.Store
	switch cfg.Registry.Backend {
	case "memory":
		store = registry.NewMemoryStore()
	default:
		store, err = registry.NewSQLiteStore(registry.SQLiteConfig{
			Path:        cfg.Registry.SQLitePath,
			BusyTimeout: cfg.Registry.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("registry store: %w", err)
		}
	}
	reg := registry.New(store)
	defer reg.Close()
	if err := reg.Restore(ctx); err != nil {
		return fmt.Errorf("restore activations: %w", err)
	}

	// Context cache.
	cache := snapshot.NewCache(&snapshot.CacheConfig{
		TTL:               cfg.Cache.TTL,
		RehydrateInterval: cfg.Cache.RehydrateInterval,
	}, nil, nil)
	cache.SetMetrics(collector.Cache())

	// Override token verification.
	var verifier *snapshot.OverrideVerifier
	if cfg.Override.Enabled {
		verifier, err = snapshot.NewOverrideVerifier(snapshot.OverrideConfig{
			Secret:   []byte(cfg.Override.SigningKey),
			Issuer:   cfg.Override.Issuer,
			Audience: cfg.Override.Audience,
		})
		if err != nil {
			return fmt.Errorf("override verifier: %w", err)
		}
	}

	// Engine and compiler.
	engine := runtime.NewEngine(&runtime.Config{
		FailSafeDefaults: *cfg.Engine.FailSafeDefaults,
	}, reg, cache, verifier)
	engine.SetMetrics(collector.Runtime())

	comp := compiler.New()
	comp.SetMetrics(collector.Compiler())

	// Audit pipeline.
	var (
		storage  audit.Storage
		recorder *audit.Recorder
		replayer *replay.Replayer
	)
	if cfg.Audit.Enabled {
		switch cfg.Audit.Backend {
		case "memory":
			storage = audit.NewMemoryStorage()
		default:
			storage, err = audit.NewSQLiteStorage(audit.SQLiteConfig{
				Path: cfg.Audit.SQLitePath,
			})
			if err != nil {
				return fmt.Errorf("audit storage: %w", err)
			}
		}
		defer storage.Close()

		recorder = audit.NewRecorder(storage, &audit.RecorderConfig{
			Enabled:      true,
			Buffer:       cfg.Audit.Buffer,
			WriteTimeout: cfg.Audit.WriteTimeout,
		})
		recorder.SetMetrics(collector.Audit())
		defer recorder.Close()

		if cfg.Audit.Retention.Schedule != "" {
			pruner := audit.NewPruner(storage, retentionConfig(&cfg.Audit.Retention))
			scheduler := audit.NewScheduler(pruner)
			if err := scheduler.Start(ctx); err != nil {
				return fmt.Errorf("retention scheduler: %w", err)
			}
			defer scheduler.Stop()
		}

		replayer = replay.New(reg, storage)
	}

	// Graph directory watcher.
	if cfg.Watcher.Enabled {
		w, err := watcher.New(&watcher.Config{
			Dir:      cfg.Watcher.Dir,
			Debounce: cfg.Watcher.Debounce,
			Activate: *cfg.Watcher.Activate,
		}, comp, reg)
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		defer w.Close()
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}

	// Readiness checks.
	checker := health.NewChecker(0)
	checker.Register("registry", reg.Ping)
	if storage != nil {
		checker.Register("audit", func(ctx context.Context) error {
			_, err := storage.Count(ctx, &audit.Query{Limit: 1})
			return err
		})
	}

	handlers := server.NewHandlers(cfg, comp, reg, cache, engine, recorder, storage, replayer)
	handlers.SetTracer(tracer)
	srv := server.NewServer(&cfg.Server, handlers, checker, collector)
	return srv.Start(ctx)
}

func retentionConfig(cfg *config.RetentionConfig) *audit.RetentionConfig {
	return &audit.RetentionConfig{
		MaxAge:     cfg.MaxAge,
		MaxRecords: int64(cfg.MaxRecords),
		Schedule:   cfg.Schedule,
	}
}
