package runtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/snapshot"
)

// Request is a single decision request.
type Request struct {
	// Tenant and DecisionType select the active blueprint.
	Tenant       string `json:"tenant"`
	DecisionType string `json:"decision_type"`

	// EntityID selects the context snapshot.
	EntityID string `json:"entity_id"`

	// Inputs are dynamic request inputs, visible to guards as input
	// references. They are request-scoped and never cached.
	Inputs map[string]any `json:"inputs,omitempty"`

	// OverrideToken is an optional signed read-your-writes token whose
	// attribute claims layer over the cached snapshot for this request.
	OverrideToken string `json:"override_token,omitempty"`

	// Explain requests the full explanation trail in the response.
	Explain bool `json:"explain,omitempty"`
}

// OutcomeKind classifies what a decision request resolved to.
type OutcomeKind string

const (
	// OutcomeDecision is a selected action outcome.
	OutcomeDecision OutcomeKind = "decision"

	// OutcomeDefault is the graph's default action, returned for an
	// empty selector candidate set.
	OutcomeDefault OutcomeKind = "default"

	// OutcomeNoDecision means no action fired. Not an error.
	OutcomeNoDecision OutcomeKind = "no_decision"

	// OutcomeDenied means a guardrail replaced the winner with the
	// no-action outcome.
	OutcomeDenied OutcomeKind = "denied"

	// OutcomeTimeout marks the audit record of a request that exceeded
	// its deadline and failed closed.
	OutcomeTimeout OutcomeKind = "timeout"
)

// Outcome is the decision a request resolved to.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// ActionID is the action node that produced the outcome, when one
	// did. Preserved on denial so the veto stays explainable.
	ActionID string `json:"action_id,omitempty"`

	// Params is the outcome payload, after any guardrail caps.
	Params map[string]any `json:"params,omitempty"`

	// Guardrails lists guardrail ids that fired on this outcome, in
	// evaluation order.
	Guardrails []string `json:"guardrails,omitempty"`
}

// Hash returns a deterministic digest of the outcome for replay
// comparison. Map keys marshal sorted, so equal outcomes hash equal.
func (o *Outcome) Hash() string {
	data, err := json.Marshal(o)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Alternative is a selector candidate that passed its guard but lost
// arbitration.
type Alternative struct {
	NodeID string         `json:"node_id"`
	Reason string         `json:"reason"` // dominated | outscored | tie_order
	Params map[string]any `json:"params,omitempty"`
}

// SkipReason classifies why a step or branch did not fire.
type SkipReason string

const (
	SkipMask         SkipReason = "mask"          // bitmask pre-filter
	SkipRequires     SkipReason = "requires"      // REQUIRES dependency not fired
	SkipNeutralized  SkipReason = "neutralized"   // NEUTRALIZES source fired
	SkipGuardFalse   SkipReason = "guard_false"   // program evaluated false
	SkipGuardFault   SkipReason = "guard_fault"   // program faulted, treated false
	SkipLostSelector SkipReason = "lost_selector" // passed but lost arbitration
)

// StepTrace is one explanation trail entry.
type StepTrace struct {
	StepID     string     `json:"step_id"`
	Kind       string     `json:"kind"`
	Fired      bool       `json:"fired"`
	Skip       SkipReason `json:"skip,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	BranchID   string     `json:"branch_id,omitempty"` // winning branch of a selector
	MaskPassed bool       `json:"mask_passed"`
}

// GuardrailTrace records a guardrail evaluation.
type GuardrailTrace struct {
	GuardrailID string `json:"guardrail_id"`
	Fired       bool   `json:"fired"`
	Effect      string `json:"effect,omitempty"`
	Message     string `json:"message,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Explain is the full explanation trail for one request.
type Explain struct {
	Steps      []StepTrace      `json:"steps"`
	Guardrails []GuardrailTrace `json:"guardrails,omitempty"`

	// ContextSource records where the snapshot came from (hot cache,
	// upstream, fallback, default).
	ContextSource snapshot.Source `json:"context_source"`

	// DefaultContext flags that no real snapshot backed the decision.
	DefaultContext bool `json:"default_context,omitempty"`

	// Overridden flags that a verified override token layered attributes
	// over the snapshot.
	Overridden bool `json:"overridden,omitempty"`

	// MaskRecomputed flags dictionary drift: the snapshot's mask was
	// computed through a different dictionary and was rebuilt.
	MaskRecomputed bool `json:"mask_recomputed,omitempty"`
}

// Response is a decision response. It pins the blueprint ref and snapshot
// id so the decision can be replayed bit-for-bit later.
type Response struct {
	TraceID      string `json:"trace_id"`
	Tenant       string `json:"tenant"`
	DecisionType string `json:"decision_type"`
	EntityID     string `json:"entity_id"`

	Outcome      Outcome       `json:"outcome"`
	Alternatives []Alternative `json:"alternatives,omitempty"`

	BlueprintRef blueprint.Ref `json:"blueprint_ref"`
	SnapshotID   string        `json:"snapshot_id,omitempty"`

	Explain *Explain `json:"explain,omitempty"`

	// ContextAttrs are the attributes the decision was evaluated against
	// (overrides merged). Not part of the client payload; the audit sink
	// embeds them so a record replays without the original snapshot.
	ContextAttrs map[string]any `json:"-"`

	EvaluatedAt time.Time     `json:"evaluated_at"`
	Duration    time.Duration `json:"-"`
}
