package replay

import (
	"context"
	"testing"

	"praetor-hq/tribune/pkg/audit"
	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/graph"
	"praetor-hq/tribune/pkg/registry"
	"praetor-hq/tribune/pkg/runtime"
	"praetor-hq/tribune/pkg/snapshot"
)

func fixtureGraph() *graph.Graph {
	return &graph.Graph{
		GraphID:      "checkout-discount",
		Tenant:       "acme",
		DecisionType: "discount",
		Revision:     1,
		Nodes: []*graph.Node{
			{ID: "entry", Kind: graph.NodeKindDecision},
			{ID: "offer-a", Kind: graph.NodeKindAction, Priority: 10,
				Guard: &graph.Expr{
					Kind:     graph.ExprKindCompare,
					Left:     &graph.Operand{Kind: graph.OperandAttr, Ref: "tier"},
					Operator: graph.OperatorEqual,
					Right:    &graph.Operand{Kind: graph.OperandLiteral, Literal: "premium"},
				},
				Params: map[string]any{"discount_pct": float64(30)},
			},
			{ID: "offer-b", Kind: graph.NodeKindAction, Priority: 5,
				Params: map[string]any{"discount_pct": float64(5)},
			},
		},
		Edges: []*graph.Edge{
			{From: "entry", To: "offer-a", Kind: graph.EdgeFlowsTo},
			{From: "entry", To: "offer-b", Kind: graph.EdgeFlowsTo},
			{From: "offer-a", To: "offer-b", Kind: graph.EdgeExcludes},
		},
	}
}

func TestReplayIdempotence(t *testing.T) {
	ctx := context.Background()

	result, err := compiler.New().Compile(fixtureGraph())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	bp := result.Blueprint

	reg := registry.New(registry.NewMemoryStore())
	if err := reg.Save(ctx, bp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := reg.Activate(ctx, bp.Ref); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	cache := snapshot.NewCache(snapshot.DefaultCacheConfig(), nil, nil)
	snap := snapshot.New("acme", "cust-1", map[string]any{"tier": "premium"}, bp.Dictionary)
	cache.Put(snap)

	eng := runtime.NewEngine(nil, reg, cache, nil)
	resp, err := eng.Execute(ctx, &runtime.Request{
		Tenant: "acme", DecisionType: "discount", EntityID: "cust-1",
		Inputs: map[string]any{"channel": "web"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	storage := audit.NewMemoryStorage()
	record := audit.FromResponse(resp, &runtime.Request{Inputs: map[string]any{"channel": "web"}})
	if err := storage.Store(ctx, record); err != nil {
		t.Fatalf("Store: %v", err)
	}

	replayer := New(reg, storage)
	for i := 0; i < 3; i++ {
		rr, err := replayer.Replay(ctx, resp.TraceID)
		if err != nil {
			t.Fatalf("Replay: %v", err)
		}
		if !rr.Identical {
			t.Fatalf("replay %d diverged: recorded %s, replayed %s (%+v)",
				i, rr.RecordedHash, rr.ReplayedHash, rr.ReplayedOutcome)
		}
		if rr.ReplayedOutcome.ActionID != "offer-a" {
			t.Errorf("replayed outcome lost the winner: %+v", rr.ReplayedOutcome)
		}
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	ctx := context.Background()

	result, err := compiler.New().Compile(fixtureGraph())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	bp := result.Blueprint

	reg := registry.New(registry.NewMemoryStore())
	if err := reg.Save(ctx, bp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	storage := audit.NewMemoryStorage()
	record := &audit.Record{
		TraceID:      "trace-diverge",
		Tenant:       "acme",
		DecisionType: "discount",
		EntityID:     "cust-1",
		BlueprintRef: bp.Ref,
		ContextAttrs: map[string]any{"tier": "premium"},
		// A tampered outcome hash that cannot match the recomputation.
		Outcome:     runtime.Outcome{Kind: runtime.OutcomeDecision, ActionID: "offer-b"},
		OutcomeHash: "not-the-real-hash",
	}
	if err := storage.Store(ctx, record); err != nil {
		t.Fatalf("Store: %v", err)
	}

	rr, err := New(reg, storage).Replay(ctx, "trace-diverge")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if rr.Identical {
		t.Error("tampered record replayed as identical")
	}
	if rr.ReplayedOutcome.ActionID != "offer-a" {
		t.Errorf("replay computed the wrong winner: %+v", rr.ReplayedOutcome)
	}
}

func TestReplayTimeoutRecordRejected(t *testing.T) {
	ctx := context.Background()
	storage := audit.NewMemoryStorage()
	record := audit.Timeout(&runtime.Request{
		Tenant: "acme", DecisionType: "discount", EntityID: "cust-1",
	}, "trace-timeout", 0)
	if err := storage.Store(ctx, record); err != nil {
		t.Fatalf("Store: %v", err)
	}

	_, err := New(registry.New(registry.NewMemoryStore()), storage).Replay(ctx, "trace-timeout")
	if err == nil {
		t.Error("timeout record has no pinned blueprint and must not replay")
	}
}
