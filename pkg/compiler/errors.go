package compiler

import (
	"fmt"

	"praetor-hq/tribune/pkg/graph"
)

// Stage names the pipeline stage a compile error originated from.
type Stage string

const (
	StageNormalize   Stage = "normalize"
	StageLint        Stage = "lint"
	StagePrune       Stage = "prune"
	StageOrder       Stage = "order"
	StageArbitrate   Stage = "arbitrate"
	StageSynthesize  Stage = "synthesize"
	StageOptimizeEmit Stage = "optimize_emit"
)

// CompileError is a structural compilation failure. It is always fatal to
// the compilation attempt and never partially applied: when a CompileError
// is returned, no blueprint exists.
type CompileError struct {
	// GraphID and Revision identify the failed revision.
	GraphID  string
	Revision int

	// Stage is the pipeline stage that failed.
	Stage Stage

	// Issues enumerates the structural problems, each naming the
	// offending node/edge ids.
	Issues *graph.IssueList
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compilation of %s@%d failed at stage %s: %s",
		e.GraphID, e.Revision, e.Stage, e.Issues.Error())
}

// HasKind returns true if any issue has the given kind.
func (e *CompileError) HasKind(kind graph.IssueKind) bool {
	return e.Issues.HasKind(kind)
}

func newCompileError(g *graph.Graph, stage Stage, issues *graph.IssueList) *CompileError {
	return &CompileError{
		GraphID:  g.GraphID,
		Revision: g.Revision,
		Stage:    stage,
		Issues:   issues,
	}
}
