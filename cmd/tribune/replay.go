package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"praetor-hq/tribune/pkg/audit"
	"praetor-hq/tribune/pkg/config"
	"praetor-hq/tribune/pkg/registry"
	"praetor-hq/tribune/pkg/replay"
)

var replayFlags struct {
	traceID string
	format  string
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded decision",
	Long: `Recompute a recorded decision from its pinned blueprint and embedded
context, and report whether the outcome is identical.

Opens the configured registry and audit stores directly; the server does
not need to be running (but must not be writing to the same SQLite files
concurrently from another host).

Examples:
  # Replay one decision
  tribune replay --trace 6f1c9a…

  # JSON output
  tribune replay --trace 6f1c9a… --format json`,
	RunE: replayTrace,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayFlags.traceID, "trace", "t", "", "trace id to replay (required)")
	replayCmd.Flags().StringVar(&replayFlags.format, "format", "text", "output format: text, json")
	_ = replayCmd.MarkFlagRequired("trace")
}

func replayTrace(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if !cfg.Audit.Enabled {
		return fmt.Errorf("auditing is disabled in the configuration")
	}
	if cfg.Registry.Backend != "sqlite" || cfg.Audit.Backend != "sqlite" {
		return fmt.Errorf("offline replay requires sqlite registry and audit backends")
	}

	store, err := registry.NewSQLiteStore(registry.SQLiteConfig{
		Path:        cfg.Registry.SQLitePath,
		BusyTimeout: cfg.Registry.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	reg := registry.New(store)
	defer reg.Close()

	storage, err := audit.NewSQLiteStorage(audit.SQLiteConfig{Path: cfg.Audit.SQLitePath})
	if err != nil {
		return fmt.Errorf("open audit storage: %w", err)
	}
	defer storage.Close()

	result, err := replay.New(reg, storage).Replay(context.Background(), replayFlags.traceID)
	if err != nil {
		return err
	}

	if replayFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Identical {
		fmt.Printf("✓ identical (%s)\n", result.ReplayedHash)
	} else {
		fmt.Printf("✗ diverged\n  recorded:  %s\n  replayed:  %s\n",
			result.RecordedHash, result.ReplayedHash)
	}
	fmt.Printf("outcome: %s", result.ReplayedOutcome.Kind)
	if result.ReplayedOutcome.ActionID != "" {
		fmt.Printf(" action=%s", result.ReplayedOutcome.ActionID)
	}
	fmt.Println()
	return nil
}
