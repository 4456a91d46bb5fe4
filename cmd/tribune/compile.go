package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/graph/parser"
)

var compileFlags struct {
	file   string
	output string
	check  bool
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a graph document offline",
	Long: `Compile a rule graph document to a blueprint without a running server.

Prints the content hash on success. With --output the full blueprint is
written as JSON, suitable for inspection or archival. With --check the
document is compiled twice and the hashes compared, verifying that
compilation is deterministic for this input.

Examples:
  # Compile and print the content hash
  tribune compile -f graph.yaml

  # Write the blueprint to a file
  tribune compile -f graph.yaml -o blueprint.json

  # CI determinism check
  tribune compile -f graph.yaml --check`,
	RunE: compileGraph,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compileFlags.file, "file", "f", "", "graph document to compile (required)")
	compileCmd.Flags().StringVarP(&compileFlags.output, "output", "o", "", "write the blueprint JSON to this file")
	compileCmd.Flags().BoolVar(&compileFlags.check, "check", false, "compile twice and verify the hashes match")
	_ = compileCmd.MarkFlagRequired("file")
}

func compileGraph(cmd *cobra.Command, args []string) error {
	p := parser.NewParser()
	comp := compiler.New()

	bp, err := compileOnce(p, comp, compileFlags.file)
	if err != nil {
		return err
	}

	if compileFlags.check {
		again, err := compileOnce(p, comp, compileFlags.file)
		if err != nil {
			return err
		}
		if bp.Ref.ContentHash != again.Ref.ContentHash {
			return fmt.Errorf("determinism check failed: %s != %s",
				bp.Ref.ContentHash, again.Ref.ContentHash)
		}
		fmt.Println("determinism check passed")
	}

	if compileFlags.output != "" {
		data, err := json.MarshalIndent(bp, "", "  ")
		if err != nil {
			return fmt.Errorf("encode blueprint: %w", err)
		}
		if err := os.WriteFile(compileFlags.output, data, 0o644); err != nil {
			return fmt.Errorf("write blueprint: %w", err)
		}
	}

	fmt.Printf("%s\n", bp.Ref.String())
	fmt.Printf("content hash: %s\n", bp.Ref.ContentHash)
	fmt.Printf("steps: %d, guardrails: %d, dictionary: %d attributes\n",
		len(bp.Steps), len(bp.Guardrails), bp.Dictionary.Len())
	return nil
}

func compileOnce(p *parser.Parser, comp *compiler.Compiler, file string) (*blueprint.Blueprint, error) {
	g, err := p.ParseFile(file)
	if err != nil {
		return nil, err
	}
	result, err := comp.Compile(g)
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			for _, issue := range ce.Issues.Issues {
				fmt.Fprintf(os.Stderr, "error: %s\n", issue.Error())
			}
			return nil, fmt.Errorf("compilation failed in stage %s", ce.Stage)
		}
		return nil, err
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning.Error())
	}
	return result.Blueprint, nil
}
