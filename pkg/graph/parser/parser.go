package parser

import (
	"fmt"
	"os"

	"praetor-hq/tribune/pkg/graph"
)

// Parser parses rule graph documents into graph ASTs. It handles YAML
// decoding, AST construction, and structural checks that do not require
// whole-graph analysis (those belong to the compiler's lint stage).
type Parser struct {
	maxFileSize int64 // maximum document size in bytes
	maxDepth    int   // maximum guard expression nesting depth
}

// NewParser creates a new parser with default limits.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: 4 * 1024 * 1024, // 4MB
		maxDepth:    16,
	}
}

// WithMaxFileSize sets the maximum document size limit.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithMaxDepth sets the maximum guard expression nesting depth.
func (p *Parser) WithMaxDepth(depth int) *Parser {
	p.maxDepth = depth
	return p
}

// ParseFile parses the graph document at the given path.
func (p *Parser) ParseFile(path string) (*graph.Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access graph document %q: %w", path, err)
	}
	if info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("graph document %q is %d bytes, exceeds maximum %d", path, info.Size(), p.maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph document %q: %w", path, err)
	}

	return p.ParseBytes(data, path)
}

// ParseBytes parses a graph document from a byte slice. sourcePath is used
// for diagnostics only.
func (p *Parser) ParseBytes(data []byte, sourcePath string) (*graph.Graph, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, fmt.Errorf("graph document is %d bytes, exceeds maximum %d", len(data), p.maxFileSize)
	}

	yg, err := parseYAMLBytes(data)
	if err != nil {
		issues := graph.NewIssueList()
		issues.Add(&graph.Issue{
			Kind:       graph.IssueSyntax,
			Message:    fmt.Sprintf("YAML parsing failed: %v", err),
			Location:   graph.Location{File: sourcePath, Line: 1, Column: 1},
			Suggestion: "check YAML syntax (indentation, colons, quotes)",
		})
		return nil, issues
	}

	b := newBuilder(sourcePath, p.maxDepth)
	g := b.buildGraph(yg)
	if err := b.issues.ToError(); err != nil {
		return nil, err
	}

	return g, nil
}
