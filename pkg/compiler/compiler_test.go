package compiler

import (
	"errors"
	"reflect"
	"testing"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/graph"
)

func testGraph() *graph.Graph {
	return &graph.Graph{
		GraphID:      "checkout-discount",
		Tenant:       "acme",
		DecisionType: "discount",
		Revision:     3,
		Nodes: []*graph.Node{
			{ID: "entry", Kind: graph.NodeKindDecision},
			{ID: "eligible", Kind: graph.NodeKindEvaluator, Guard: &graph.Expr{
				Kind: graph.ExprKindHas, Attr: "tier",
			}},
			{ID: "gold-offer", Kind: graph.NodeKindAction, Priority: 10,
				Guard: &graph.Expr{
					Kind:     graph.ExprKindCompare,
					Left:     &graph.Operand{Kind: graph.OperandAttr, Ref: "tier"},
					Operator: graph.OperatorEqual,
					Right:    &graph.Operand{Kind: graph.OperandLiteral, Literal: "gold"},
				},
				Params: map[string]any{"discount_pct": float64(30)},
			},
			{ID: "base-offer", Kind: graph.NodeKindAction, Priority: 5,
				Params: map[string]any{"discount_pct": float64(5)},
			},
		},
		Edges: []*graph.Edge{
			{From: "entry", To: "eligible", Kind: graph.EdgeFlowsTo},
			{From: "eligible", To: "gold-offer", Kind: graph.EdgeRequires},
			{From: "eligible", To: "base-offer", Kind: graph.EdgeRequires},
			{From: "gold-offer", To: "base-offer", Kind: graph.EdgeExcludes},
		},
	}
}

func compileErr(t *testing.T, err error) *CompileError {
	t.Helper()
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %T: %v", err, err)
	}
	return ce
}

func TestCompileProducesSelectorAndOrder(t *testing.T) {
	result, err := New().Compile(testGraph())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	bp := result.Blueprint

	if got := len(bp.Steps); got != 3 {
		t.Fatalf("expected 3 steps (entry, eligible, selector), got %d", got)
	}
	if bp.Steps[0].ID != "entry" || bp.Steps[1].ID != "eligible" {
		t.Errorf("unexpected step order: %s, %s", bp.Steps[0].ID, bp.Steps[1].ID)
	}

	sel := bp.Steps[2]
	if sel.Kind != blueprint.StepSelector {
		t.Fatalf("expected selector step, got %s", sel.Kind)
	}
	if sel.Policy != blueprint.PolicyHighestPriority {
		t.Errorf("expected default highest-priority policy, got %s", sel.Policy)
	}
	if len(sel.Branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(sel.Branches))
	}
	// Declaration order, not priority order.
	if sel.Branches[0].NodeID != "gold-offer" || sel.Branches[1].NodeID != "base-offer" {
		t.Errorf("unexpected branch order: %s, %s", sel.Branches[0].NodeID, sel.Branches[1].NodeID)
	}
	if got := sel.Branches[0].RequiresFired; len(got) != 1 || got[0] != "eligible" {
		t.Errorf("expected gold-offer to require eligible, got %v", got)
	}
}

func TestCompileDeterministicHash(t *testing.T) {
	first, err := New().Compile(testGraph())
	if err != nil {
		t.Fatalf("first compile: %v", err)
	}
	second, err := New().Compile(testGraph())
	if err != nil {
		t.Fatalf("second compile: %v", err)
	}

	if first.Blueprint.Ref.ContentHash != second.Blueprint.Ref.ContentHash {
		t.Errorf("same revision compiled to different hashes:\n  %s\n  %s",
			first.Blueprint.Ref.ContentHash, second.Blueprint.Ref.ContentHash)
	}

	changed := testGraph()
	changed.Nodes[2].Params["discount_pct"] = float64(25)
	third, err := New().Compile(changed)
	if err != nil {
		t.Fatalf("third compile: %v", err)
	}
	if third.Blueprint.Ref.ContentHash == first.Blueprint.Ref.ContentHash {
		t.Error("semantically different graphs compiled to the same hash")
	}
}

func TestCompileRuleMasks(t *testing.T) {
	result, err := New().Compile(testGraph())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	bp := result.Blueprint

	bit, ok := bp.Dictionary.Bit("tier")
	if !ok {
		t.Fatal("dictionary is missing the referenced attribute tier")
	}

	// eligible's guard is a pure presence check: mask bit set, no program.
	eligible, _ := bp.StepByID("eligible")
	if eligible == nil {
		t.Fatal("missing eligible step")
	}
	if !eligible.RuleMask.Has(bit) {
		t.Error("eligible mask is missing the tier bit")
	}
	if eligible.Guard != nil {
		t.Error("pure presence guard should compile to no program")
	}

	sel, _ := bp.StepByID("selector:gold-offer")
	if sel == nil {
		t.Fatal("missing selector step")
	}
	// gold-offer references tier in a positive conjunct; base-offer has no
	// guard, so the step-level intersection must be empty.
	if !sel.Branches[0].RuleMask.Has(bit) {
		t.Error("gold-offer branch mask is missing the tier bit")
	}
	if !sel.RuleMask.IsZero() {
		t.Error("selector step mask should be the empty intersection")
	}
	if sel.Branches[0].Guard == nil {
		t.Error("comparison guard should compile to a program")
	}
}

func TestCompileStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*graph.Graph)
		stage  Stage
		kind   graph.IssueKind
	}{
		{
			name: "duplicate node id",
			mutate: func(g *graph.Graph) {
				g.Nodes = append(g.Nodes, &graph.Node{ID: "entry", Kind: graph.NodeKindEvaluator})
			},
			stage: StageNormalize,
			kind:  graph.IssueDuplicateNode,
		},
		{
			name: "dangling edge",
			mutate: func(g *graph.Graph) {
				g.Edges = append(g.Edges, &graph.Edge{From: "entry", To: "ghost", Kind: graph.EdgeFlowsTo})
			},
			stage: StageLint,
			kind:  graph.IssueDanglingReference,
		},
		{
			name: "self loop",
			mutate: func(g *graph.Graph) {
				g.Edges = append(g.Edges, &graph.Edge{From: "eligible", To: "eligible", Kind: graph.EdgeFlowsTo})
			},
			stage: StageLint,
			kind:  graph.IssueSelfLoop,
		},
		{
			name: "requires cycle",
			mutate: func(g *graph.Graph) {
				g.Edges = append(g.Edges, &graph.Edge{From: "gold-offer", To: "eligible", Kind: graph.EdgeFlowsTo})
			},
			stage: StageLint,
			kind:  graph.IssueCycleDetected,
		},
		{
			name: "no entry node",
			mutate: func(g *graph.Graph) {
				g.Nodes = g.Nodes[1:]
				g.Edges = g.Edges[1:]
			},
			stage: StageLint,
			kind:  graph.IssueNoEntryNode,
		},
		{
			name: "dominates across groups",
			mutate: func(g *graph.Graph) {
				g.Edges = append(g.Edges, &graph.Edge{From: "eligible", To: "gold-offer", Kind: graph.EdgeDominates})
			},
			stage: StageLint,
			kind:  graph.IssueAmbiguousArbitration,
		},
		{
			name: "dominance cycle",
			mutate: func(g *graph.Graph) {
				g.Edges = append(g.Edges,
					&graph.Edge{From: "gold-offer", To: "base-offer", Kind: graph.EdgeDominates},
					&graph.Edge{From: "base-offer", To: "gold-offer", Kind: graph.EdgeDominates},
				)
			},
			stage: StageArbitrate,
			kind:  graph.IssueAmbiguousArbitration,
		},
		{
			name: "unknown default policy",
			mutate: func(g *graph.Graph) {
				g.Defaults.SelectionPolicy = "coin-flip"
			},
			stage: StageArbitrate,
			kind:  graph.IssueAmbiguousArbitration,
		},
		{
			name: "default action names missing node",
			mutate: func(g *graph.Graph) {
				g.Defaults.DefaultAction = "ghost"
			},
			stage: StageOptimizeEmit,
			kind:  graph.IssueDanglingReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGraph()
			tt.mutate(g)
			_, err := New().Compile(g)
			ce := compileErr(t, err)
			if ce.Stage != tt.stage {
				t.Errorf("expected failure at stage %s, got %s", tt.stage, ce.Stage)
			}
			if !ce.HasKind(tt.kind) {
				t.Errorf("expected issue kind %s, got: %v", tt.kind, ce.Issues)
			}
		})
	}
}

func TestCycleWitnessNamesOnlyCycleNodes(t *testing.T) {
	// "report" sits downstream of the loop-a/loop-b cycle, so it is
	// residual after the topological pass, but it is not on any cycle
	// and must not appear in the witness. It is declared first so the
	// witness walk starts from it.
	g := &graph.Graph{
		GraphID:      "fulfillment-routing",
		Tenant:       "acme",
		DecisionType: "routing",
		Revision:     1,
		Nodes: []*graph.Node{
			{ID: "entry", Kind: graph.NodeKindDecision},
			{ID: "report", Kind: graph.NodeKindAction, Params: map[string]any{"route": "manual"}},
			{ID: "loop-a", Kind: graph.NodeKindEvaluator, Guard: &graph.Expr{Kind: graph.ExprKindHas, Attr: "region"}},
			{ID: "loop-b", Kind: graph.NodeKindEvaluator, Guard: &graph.Expr{Kind: graph.ExprKindHas, Attr: "carrier"}},
		},
		Edges: []*graph.Edge{
			{From: "entry", To: "loop-a", Kind: graph.EdgeFlowsTo},
			{From: "loop-a", To: "loop-b", Kind: graph.EdgeFlowsTo},
			{From: "loop-b", To: "loop-a", Kind: graph.EdgeFlowsTo},
			{From: "loop-b", To: "report", Kind: graph.EdgeFlowsTo},
		},
	}

	_, err := New().Compile(g)
	ce := compileErr(t, err)
	if ce.Stage != StageLint {
		t.Errorf("expected failure at stage %s, got %s", StageLint, ce.Stage)
	}

	var witness []string
	for _, is := range ce.Issues.Issues {
		if is.Kind == graph.IssueCycleDetected {
			witness = is.NodeIDs
		}
	}
	if want := []string{"loop-a", "loop-b"}; !reflect.DeepEqual(witness, want) {
		t.Errorf("cycle witness = %v, want %v", witness, want)
	}
}

func TestCompilePrunesUnreachableAndFalse(t *testing.T) {
	g := testGraph()
	g.Nodes = append(g.Nodes,
		&graph.Node{ID: "orphan", Kind: graph.NodeKindEvaluator},
		&graph.Node{ID: "never", Kind: graph.NodeKindAction, Guard: &graph.Expr{
			Kind:     graph.ExprKindCompare,
			Left:     &graph.Operand{Kind: graph.OperandLiteral, Literal: float64(1)},
			Operator: graph.OperatorGreaterThan,
			Right:    &graph.Operand{Kind: graph.OperandLiteral, Literal: float64(2)},
		}},
	)
	g.Edges = append(g.Edges, &graph.Edge{From: "entry", To: "never", Kind: graph.EdgeFlowsTo})

	result, err := New().Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var kinds []graph.IssueKind
	for _, w := range result.Warnings {
		kinds = append(kinds, w.Kind)
	}
	if len(kinds) != 2 {
		t.Fatalf("expected 2 prune warnings, got %v", kinds)
	}
	for _, id := range []string{"orphan", "never"} {
		if _, ok := result.Blueprint.StepByID(id); ok {
			t.Errorf("pruned node %s still appears as a step", id)
		}
	}
}

func TestCompileCompositePolicyHint(t *testing.T) {
	g := testGraph()
	g.Nodes = append(g.Nodes, &graph.Node{
		ID: "offers", Kind: graph.NodeKindComposite, Arbitration: "best-match",
	})
	g.Edges = append(g.Edges,
		&graph.Edge{From: "entry", To: "offers", Kind: graph.EdgeFlowsTo},
		&graph.Edge{From: "offers", To: "gold-offer", Kind: graph.EdgeFlowsTo},
	)

	result, err := New().Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var sel *blueprint.Step
	for i := range result.Blueprint.Steps {
		if result.Blueprint.Steps[i].Kind == blueprint.StepSelector {
			sel = &result.Blueprint.Steps[i]
		}
	}
	if sel == nil {
		t.Fatal("missing selector step")
	}
	if sel.Policy != blueprint.PolicyBestMatch {
		t.Errorf("composite hint not applied: got %s", sel.Policy)
	}
	// The composite itself must not appear as a step.
	if _, ok := result.Blueprint.StepByID("offers"); ok {
		t.Error("composite node leaked into the step list")
	}
}

func TestCompileDominancePairs(t *testing.T) {
	g := testGraph()
	g.Edges = append(g.Edges, &graph.Edge{From: "gold-offer", To: "base-offer", Kind: graph.EdgeDominates})

	result, err := New().Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	sel, _ := result.Blueprint.StepByID("selector:gold-offer")
	if sel == nil {
		t.Fatal("missing selector step")
	}
	if len(sel.Dominance) != 1 || sel.Dominance[0] != [2]int{0, 1} {
		t.Errorf("expected dominance pair [0 1], got %v", sel.Dominance)
	}
}

func TestCompileDefaultOutcome(t *testing.T) {
	g := testGraph()
	g.Defaults.DefaultAction = "base-offer"

	result, err := New().Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	out := result.Blueprint.DefaultOutcome
	if out == nil || out.NodeID != "base-offer" {
		t.Fatalf("expected default outcome base-offer, got %+v", out)
	}
}

func TestCompileGuardrails(t *testing.T) {
	g := testGraph()
	g.Guardrails = []*graph.GuardrailDecl{
		{
			ID: "margin-floor",
			When: &graph.Expr{
				Kind:     graph.ExprKindCompare,
				Left:     &graph.Operand{Kind: graph.OperandField, Ref: "discount_pct"},
				Operator: graph.OperatorGreaterThan,
				Right:    &graph.Operand{Kind: graph.OperandLiteral, Literal: float64(20)},
			},
			Effect:  graph.EffectCap,
			Params:  map[string]any{"param": "discount_pct", "max": float64(20)},
			Message: "discount capped at margin floor",
		},
	}

	result, err := New().Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	rails := result.Blueprint.Guardrails
	if len(rails) != 1 {
		t.Fatalf("expected 1 guardrail, got %d", len(rails))
	}
	if rails[0].Param != "discount_pct" || rails[0].Max != 20 {
		t.Errorf("cap parameters not carried over: %+v", rails[0])
	}
	if rails[0].When == nil {
		t.Error("guardrail condition did not compile")
	}
}
