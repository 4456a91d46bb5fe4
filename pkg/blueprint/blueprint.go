package blueprint

import (
	"fmt"
	"time"

	"praetor-hq/tribune/pkg/snapshot"
)

// CompilerVersion is stamped into every blueprint. Bump on any change to
// compilation semantics: it participates in the content hash so that two
// compiler builds with different semantics never collide on a hash.
const CompilerVersion = "1"

// Ref identifies a blueprint: the graph revision it was compiled from plus
// the content hash of the compiled artifact.
type Ref struct {
	GraphID     string `json:"graph_id"`
	Revision    int    `json:"revision"`
	ContentHash string `json:"content_hash"`
}

// String returns "graphID@revision#hashPrefix".
func (r Ref) String() string {
	h := r.ContentHash
	if len(h) > 12 {
		h = h[:12]
	}
	return fmt.Sprintf("%s@%d#%s", r.GraphID, r.Revision, h)
}

// StepKind represents the kind of a compiled step.
type StepKind string

const (
	// StepSequential is a linear obligation: fires when its guard passes,
	// produces no outcome.
	StepSequential StepKind = "sequential"

	// StepSelector groups mutually exclusive candidate branches requiring
	// arbitration to pick at most one winner.
	StepSelector StepKind = "selector"

	// StepTask is a leaf action: fires when its guard passes and produces
	// its action's outcome.
	StepTask StepKind = "task"
)

// SelectionPolicy names how a selector step picks a winner among passing
// branches. Ties always break by declared (compiled) branch order.
type SelectionPolicy string

const (
	// PolicyHighestPriority picks the passing branch with the highest
	// priority.
	PolicyHighestPriority SelectionPolicy = "highest-priority"

	// PolicyFirstMatch picks the first passing branch in declared order.
	PolicyFirstMatch SelectionPolicy = "first-match"

	// PolicyBestMatch picks the passing branch with the highest weight;
	// equal weights break by rule mask popcount (more specific wins).
	PolicyBestMatch SelectionPolicy = "best-match"
)

// ValidSelectionPolicy reports whether p is a known selection policy.
func ValidSelectionPolicy(p SelectionPolicy) bool {
	switch p {
	case PolicyHighestPriority, PolicyFirstMatch, PolicyBestMatch:
		return true
	}
	return false
}

// ActionSpec is a task or branch outcome payload.
type ActionSpec struct {
	// NodeID is the action node the outcome originates from.
	NodeID string `json:"node_id"`

	// Params is the outcome payload (e.g. discount_pct: 30).
	Params map[string]any `json:"params,omitempty"`
}

// Branch is one candidate inside a selector step.
type Branch struct {
	// NodeID is the graph node this branch was compiled from.
	NodeID string `json:"node_id"`

	// Label is the node's human-readable description.
	Label string `json:"label,omitempty"`

	// RuleMask is the branch's bitmask pre-filter.
	RuleMask snapshot.Mask `json:"rule_mask,omitempty"`

	// Guard is the compiled residual predicate. Nil means always pass.
	Guard *Program `json:"guard,omitempty"`

	// RequiresFired lists node ids that must have fired earlier for the
	// branch to be eligible (synthesized from REQUIRES edges).
	RequiresFired []string `json:"requires_fired,omitempty"`

	// SkipIfFired lists node ids whose firing removes this branch from
	// the candidate set (synthesized from NEUTRALIZES edges).
	SkipIfFired []string `json:"skip_if_fired,omitempty"`

	// Priority drives highest-priority arbitration.
	Priority int `json:"priority"`

	// Weight drives best-match arbitration.
	Weight float64 `json:"weight"`

	// Action is the branch's outcome when it wins.
	Action *ActionSpec `json:"action,omitempty"`
}

// ActionParams returns the branch's outcome payload, or nil for branches
// without an action.
func (b *Branch) ActionParams() map[string]any {
	if b.Action == nil {
		return nil
	}
	return b.Action.Params
}

// Step is one flattened plan element, executed in compiled order.
type Step struct {
	// ID identifies the step: the source node id, or a synthesized
	// "selector:<first-member>" id for arbitration groups.
	ID string `json:"id"`

	// Kind is sequential, selector, or task.
	Kind StepKind `json:"kind"`

	// Label is the source node's human-readable description.
	Label string `json:"label,omitempty"`

	// RuleMask describes which context attribute bits must be present for
	// the step to even be considered: the pre-filter runs before any
	// predicate evaluation. For selector steps it is the intersection of
	// all branch masks (a bit required by every branch).
	RuleMask snapshot.Mask `json:"rule_mask,omitempty"`

	// Guard is the compiled residual predicate. Nil means always pass.
	// Unused on selector steps; branches carry their own guards.
	Guard *Program `json:"guard,omitempty"`

	// RequiresFired lists node ids that must have fired earlier
	// (synthesized from REQUIRES edges).
	RequiresFired []string `json:"requires_fired,omitempty"`

	// SkipIfFired lists node ids whose firing neutralizes this step
	// (synthesized from NEUTRALIZES edges).
	SkipIfFired []string `json:"skip_if_fired,omitempty"`

	// Action is the outcome payload for task steps.
	Action *ActionSpec `json:"action,omitempty"`

	// Branches are the selector step's candidates, in declared order.
	Branches []Branch `json:"branches,omitempty"`

	// Policy is the selector step's selection policy.
	Policy SelectionPolicy `json:"policy,omitempty"`

	// Dominance lists branch index pairs [winner, loser]: when both are
	// eligible candidates, the loser is dropped before scoring.
	Dominance [][2]int `json:"dominance,omitempty"`
}

// Guardrail is a compiled cross-cutting veto, evaluated after a winner is
// selected, in declared order.
type Guardrail struct {
	// ID identifies the guardrail in explanation trails.
	ID string `json:"id"`

	// When is the compiled firing condition. It may reference context
	// attributes, dynamic inputs, and decision outcome fields.
	When *Program `json:"when"`

	// Effect is deny or cap.
	Effect string `json:"effect"`

	// Param names the outcome field a cap clamps.
	Param string `json:"param,omitempty"`

	// Max is the cap value.
	Max float64 `json:"max,omitempty"`

	// Message is the human-readable explanation attached when firing.
	Message string `json:"message,omitempty"`
}

// Blueprint is the compiled, immutable execution plan.
type Blueprint struct {
	// Ref identifies this blueprint.
	Ref Ref `json:"ref"`

	// Tenant and DecisionType scope activation: exactly one blueprint may
	// be active per (tenant, decision type) at a time.
	Tenant       string `json:"tenant"`
	DecisionType string `json:"decision_type"`

	// Dictionary maps attribute names to rule mask bits.
	Dictionary *snapshot.Dictionary `json:"dictionary"`

	// Steps in compiled topological order.
	Steps []Step `json:"steps"`

	// Guardrails in declared evaluation order.
	Guardrails []Guardrail `json:"guardrails,omitempty"`

	// DefaultOutcome, when set, is returned for an empty selector
	// candidate set instead of "no decision".
	DefaultOutcome *ActionSpec `json:"default_outcome,omitempty"`

	// OnMissingContext is "default" or "fail" (from the graph defaults).
	OnMissingContext string `json:"on_missing_context"`

	// CompiledAt is when compilation happened. Not part of the content
	// hash: identical revisions compile to identical hashes regardless of
	// wall time.
	CompiledAt time.Time `json:"compiled_at"`

	// CompilerVersion is the compiler semantics version that produced
	// this blueprint.
	CompilerVersion string `json:"compiler_version"`
}

// Prepare finishes a decoded or freshly compiled blueprint for execution by
// compiling every program's regex pool. Must be called exactly once before
// the blueprint is published; execution itself never compiles anything.
func (bp *Blueprint) Prepare() error {
	var programs []*Program
	for i := range bp.Steps {
		step := &bp.Steps[i]
		if step.Guard != nil {
			programs = append(programs, step.Guard)
		}
		for j := range step.Branches {
			if g := step.Branches[j].Guard; g != nil {
				programs = append(programs, g)
			}
		}
	}
	for i := range bp.Guardrails {
		if w := bp.Guardrails[i].When; w != nil {
			programs = append(programs, w)
		}
	}

	for _, p := range programs {
		if err := p.prepare(); err != nil {
			return fmt.Errorf("blueprint %s: %w", bp.Ref, err)
		}
	}
	return nil
}

// StepByID returns the step with the given id and whether it exists.
func (bp *Blueprint) StepByID(id string) (*Step, bool) {
	for i := range bp.Steps {
		if bp.Steps[i].ID == id {
			return &bp.Steps[i], true
		}
	}
	return nil, false
}
