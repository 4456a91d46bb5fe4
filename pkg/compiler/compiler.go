package compiler

import (
	"log/slog"
	"time"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/graph"
)

// Result is a successful compilation: the blueprint plus non-fatal warnings
// (pruned nodes, statically false branches).
type Result struct {
	Blueprint *blueprint.Blueprint
	Warnings  []*graph.Issue
}

// Metrics receives compilation observations. A nil-safe noop is used when
// unset.
type Metrics interface {
	ObserveCompile(tenant, decisionType, outcome string, duration time.Duration)
}

// Compiler compiles graph revisions into blueprints.
type Compiler struct {
	logger  *slog.Logger
	metrics Metrics
}

// New creates a compiler.
func New() *Compiler {
	return &Compiler{
		logger: slog.Default().With("component", "compiler"),
	}
}

// SetMetrics installs a metrics sink.
func (c *Compiler) SetMetrics(m Metrics) {
	c.metrics = m
}

// Compile runs the seven-stage pipeline on a graph revision. On failure it
// returns a *CompileError and no blueprint; it never mutates the input
// graph.
func (c *Compiler) Compile(g *graph.Graph) (*Result, error) {
	start := time.Now()

	result, err := c.compile(g)

	duration := time.Since(start)
	if err != nil {
		ce, _ := err.(*CompileError)
		c.logger.Warn("compilation failed",
			"graph_id", g.GraphID,
			"revision", g.Revision,
			"stage", string(stageOf(ce)),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		c.observe(g, "error", duration)
		return nil, err
	}

	c.logger.Info("graph compiled",
		"graph_id", g.GraphID,
		"revision", g.Revision,
		"content_hash", result.Blueprint.Ref.ContentHash,
		"steps", len(result.Blueprint.Steps),
		"warnings", len(result.Warnings),
		"duration_ms", duration.Milliseconds(),
	)
	c.observe(g, "success", duration)
	return result, nil
}

func (c *Compiler) compile(g *graph.Graph) (*Result, error) {
	warnings := graph.NewIssueList()

	// Stage 1: normalize node/edge representation.
	norm, err := normalize(g)
	if err != nil {
		return nil, err
	}

	// Stage 2: structural lint.
	if err := lint(g, norm); err != nil {
		return nil, err
	}

	// Stage 3: prune unreachable and unsatisfiable nodes.
	pruned := prune(g, norm, warnings)

	// Stage 4: topological order.
	order, err := computeOrder(g, pruned)
	if err != nil {
		return nil, err
	}

	// Stage 5: arbitration groups from EXCLUDES components.
	groups, err := arbitrate(g, pruned)
	if err != nil {
		return nil, err
	}

	// Stage 6: synthesize runtime guards from REQUIRES/NEUTRALIZES edges.
	guards := synthesizeGuards(pruned)

	// Stage 7: optimize and emit the blueprint.
	bp, err := emit(g, pruned, order, groups, guards)
	if err != nil {
		return nil, err
	}

	return &Result{Blueprint: bp, Warnings: warnings.Issues}, nil
}

func (c *Compiler) observe(g *graph.Graph, outcome string, duration time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveCompile(g.Tenant, g.DecisionType, outcome, duration)
	}
}

func stageOf(e *CompileError) Stage {
	if e == nil {
		return ""
	}
	return e.Stage
}
