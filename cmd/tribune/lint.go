package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/graph/parser"
)

var lintFlags struct {
	file   string
	dir    string
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate graph documents",
	Long: `Validate rule graph documents without storing anything.

The lint command parses graph documents and runs the full compilation
pipeline: structural validation, reachability and cycle analysis,
arbitration checks, and guard expression compilation.

Examples:
  # Lint a single document
  tribune lint --file graph.yaml

  # Lint a directory
  tribune lint --dir graphs/

  # Strict mode (warnings as errors)
  tribune lint --file graph.yaml --strict

  # JSON output for CI
  tribune lint --file graph.yaml --format json`,
	RunE: lintGraphs,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "graph document to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of graph documents")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

type lintResult struct {
	File     string   `json:"file"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func lintGraphs(cmd *cobra.Command, args []string) error {
	files, err := collectGraphFiles(lintFlags.file, lintFlags.dir)
	if err != nil {
		return err
	}

	p := parser.NewParser()
	comp := compiler.New()

	results := make([]lintResult, 0, len(files))
	failed := false
	for _, file := range files {
		res := lintResult{File: file, Valid: true}

		g, err := p.ParseFile(file)
		if err != nil {
			res.Valid = false
			res.Errors = append(res.Errors, err.Error())
		} else if result, err := comp.Compile(g); err != nil {
			res.Valid = false
			var ce *compiler.CompileError
			if errors.As(err, &ce) {
				for _, issue := range ce.Issues.Issues {
					res.Errors = append(res.Errors, issue.Error())
				}
			} else {
				res.Errors = append(res.Errors, err.Error())
			}
		} else {
			for _, warning := range result.Warnings {
				res.Warnings = append(res.Warnings, warning.Error())
			}
		}

		if !res.Valid || (lintFlags.strict && len(res.Warnings) > 0) {
			failed = true
		}
		results = append(results, res)
	}

	if lintFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printLintResults(results)
	}

	if failed {
		return fmt.Errorf("lint failed")
	}
	return nil
}

func printLintResults(results []lintResult) {
	for _, res := range results {
		switch {
		case !res.Valid:
			fmt.Printf("✗ %s\n", res.File)
		case len(res.Warnings) > 0:
			fmt.Printf("! %s\n", res.File)
		default:
			fmt.Printf("✓ %s\n", res.File)
		}
		for _, e := range res.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		for _, w := range res.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
}

func collectGraphFiles(file, dir string) ([]string, error) {
	if file == "" && dir == "" {
		return nil, fmt.Errorf("either --file or --dir must be specified")
	}

	var files []string
	if file != "" {
		files = append(files, file)
	}
	if dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("listing graph documents: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no graph documents found")
	}
	return files, nil
}
