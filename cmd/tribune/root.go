package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tribune",
	Short: "Tribune - compiled decision runtime",
	Long: `Tribune compiles business rule graphs into immutable blueprints and
evaluates them against per-entity context snapshots.

Decisions are deterministic: conflicts are arbitrated at compile time,
guardrails bound every outcome, and every response is auditable and
replayable from its pinned blueprint and context identities.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
}
