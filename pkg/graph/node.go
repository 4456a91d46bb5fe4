package graph

// NodeKind represents the kind of a rule graph node.
type NodeKind string

const (
	// NodeKindDecision is an entry point for a decision type. Evaluation
	// reachability is computed from decision nodes.
	NodeKindDecision NodeKind = "decision"

	// NodeKindEvaluator is a named checkpoint whose guard gates dependent
	// nodes. It fires when its guard passes and produces no outcome.
	NodeKindEvaluator NodeKind = "evaluator"

	// NodeKindAction is a leaf node that produces an outcome (its params)
	// when it fires.
	NodeKindAction NodeKind = "action"

	// NodeKindComposite groups mutually exclusive candidates and carries
	// arbitration hints for the selector step the compiler builds from
	// its EXCLUDES-linked members.
	NodeKindComposite NodeKind = "composite"
)

// EdgeKind represents the kind of a typed edge between two nodes.
type EdgeKind string

const (
	// EdgeRequires makes the target node's firing conditional on the
	// source node having fired earlier in the same evaluation.
	EdgeRequires EdgeKind = "requires"

	// EdgeFlowsTo orders the target node after the source node.
	EdgeFlowsTo EdgeKind = "flows_to"

	// EdgeExcludes links mutually exclusive candidates. All nodes connected
	// by EXCLUDES edges form one arbitration group.
	EdgeExcludes EdgeKind = "excludes"

	// EdgeDominates declares pairwise precedence between two candidates in
	// the same arbitration group: if both are eligible, the source wins.
	EdgeDominates EdgeKind = "dominates"

	// EdgeNeutralizes skips the target node when the source node has
	// already fired.
	EdgeNeutralizes EdgeKind = "neutralizes"
)

// ValidNodeKind reports whether k is a known node kind.
func ValidNodeKind(k NodeKind) bool {
	switch k {
	case NodeKindDecision, NodeKindEvaluator, NodeKindAction, NodeKindComposite:
		return true
	}
	return false
}

// ValidEdgeKind reports whether k is a known edge kind.
func ValidEdgeKind(k EdgeKind) bool {
	switch k {
	case EdgeRequires, EdgeFlowsTo, EdgeExcludes, EdgeDominates, EdgeNeutralizes:
		return true
	}
	return false
}

// Node is a single rule graph node.
type Node struct {
	// ID uniquely identifies the node within its graph.
	ID string

	// Kind is the node's polymorphic kind.
	Kind NodeKind

	// Label is an optional human-readable description.
	Label string

	// Priority breaks ordering ties and drives highest-priority
	// arbitration. Higher wins.
	Priority int

	// Weight drives best-match arbitration. Higher wins.
	Weight float64

	// Guard is the node's guard expression. Nil means always eligible.
	Guard *Expr

	// Params is the outcome payload for action nodes (e.g. discount_pct).
	Params map[string]any

	// Arbitration is an optional selection policy hint on composite nodes,
	// applied to the selector group formed from their EXCLUDES members.
	Arbitration string

	// Location is the node's source location in the graph document.
	Location Location
}

// Edge is a typed, directed edge between two nodes identified by id.
type Edge struct {
	From     string
	To       string
	Kind     EdgeKind
	Location Location
}

// GuardrailEffect is what a firing guardrail does to the winning decision.
type GuardrailEffect string

const (
	// EffectDeny replaces the winning decision with the no-action outcome.
	EffectDeny GuardrailEffect = "deny"

	// EffectCap clamps a named numeric outcome param to a maximum value.
	EffectCap GuardrailEffect = "cap"
)

// GuardrailDecl is a cross-cutting veto declared on a graph. Guardrails run
// after a winner is selected and always resolve to the conservative outcome;
// they never trigger reselection.
type GuardrailDecl struct {
	// ID identifies the guardrail in explanation trails.
	ID string

	// When is the firing condition, evaluated over context attributes,
	// dynamic inputs, and the winning decision's outcome fields.
	When *Expr

	// Effect is deny or cap.
	Effect GuardrailEffect

	// Params configures the effect. For cap: "param" names the outcome
	// field to clamp and "max" is the cap value.
	Params map[string]any

	// Message is the human-readable explanation attached when firing.
	Message string

	Location Location
}
