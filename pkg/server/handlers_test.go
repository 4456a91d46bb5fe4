package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"praetor-hq/tribune/pkg/audit"
	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/config"
	"praetor-hq/tribune/pkg/registry"
	"praetor-hq/tribune/pkg/replay"
	"praetor-hq/tribune/pkg/runtime"
	"praetor-hq/tribune/pkg/snapshot"
)

const discountDoc = `
graph_id: checkout-discount
tenant: acme
decision_type: discount
revision: 1
attributes: [tier, region]
nodes:
  - id: entry
    kind: decision
  - id: offer-a
    kind: action
    priority: 10
    guard:
      compare:
        left: {attr: tier}
        op: "=="
        right: {value: premium}
    params:
      discount_pct: 30
  - id: offer-b
    kind: action
    priority: 5
    params:
      discount_pct: 5
edges:
  - {from: entry, to: offer-a, kind: flows_to}
  - {from: entry, to: offer-b, kind: flows_to}
  - {from: offer-a, to: offer-b, kind: excludes}
guardrails:
  - id: margin-floor
    when:
      compare:
        left: {field: discount_pct}
        op: ">"
        right: {value: 20}
    effect: cap
    params: {param: discount_pct, max: 20}
    message: discount capped at margin floor
`

type testAPI struct {
	handler  http.Handler
	recorder *audit.Recorder
	storage  audit.Storage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Engine.ExecuteTimeout = time.Second

	reg := registry.New(registry.NewMemoryStore())
	t.Cleanup(func() { _ = reg.Close() })
	cache := snapshot.NewCache(nil, nil, nil)
	engine := runtime.NewEngine(nil, reg, cache, nil)

	storage := audit.NewMemoryStorage()
	recorder := audit.NewRecorder(storage, &audit.RecorderConfig{
		Enabled:      true,
		Buffer:       100,
		WriteTimeout: time.Second,
	})
	t.Cleanup(recorder.Close)

	handlers := NewHandlers(cfg, compiler.New(), reg, cache, engine,
		recorder, storage, replay.New(reg, storage))
	srv := NewServer(&cfg.Server, handlers, nil, nil)

	return &testAPI{handler: srv.routes(), recorder: recorder, storage: storage}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: response is not JSON: %v\n%s", method, path, err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestAPIDecisionLifecycle(t *testing.T) {
	api := newTestAPI(t)

	// Compile.
	rec, body := api.do(t, "POST", "/v1/compile", discountDoc)
	if rec.Code != http.StatusOK {
		t.Fatalf("compile status = %d: %v", rec.Code, body)
	}
	bp := body["blueprint"].(map[string]any)
	contentHash := bp["content_hash"].(string)
	if contentHash == "" {
		t.Fatal("compile returned empty content hash")
	}

	// Execute before activation fails safe: no active blueprint.
	rec, body = api.do(t, "POST", "/v1/execute", map[string]any{
		"tenant": "acme", "decision_type": "discount", "entity_id": "cust-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("pre-activation execute status = %d: %v", rec.Code, body)
	}
	if kind := body["outcome"].(map[string]any)["kind"]; kind != "no_decision" {
		t.Errorf("pre-activation outcome = %v, want no_decision", kind)
	}

	// Activate.
	rec, body = api.do(t, "POST", "/v1/activate", map[string]any{
		"graph_id": "checkout-discount", "revision": 1, "content_hash": contentHash,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d: %v", rec.Code, body)
	}

	// Ingest a premium context.
	rec, body = api.do(t, "PUT", "/v1/contexts/acme/cust-1", map[string]any{
		"attrs":         map[string]any{"tier": "premium", "region": "eu"},
		"decision_type": "discount",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d: %v", rec.Code, body)
	}
	if body["mask_set"] != true {
		t.Error("ingest did not compute the mask through the active dictionary")
	}

	// Execute: premium wins offer-a, guardrail caps 30 to 20.
	rec, body = api.do(t, "POST", "/v1/execute", map[string]any{
		"tenant": "acme", "decision_type": "discount", "entity_id": "cust-1",
		"explain": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status = %d: %v", rec.Code, body)
	}
	traceID := body["trace_id"].(string)
	outcome := body["outcome"].(map[string]any)
	if outcome["action_id"] != "offer-a" {
		t.Errorf("action = %v, want offer-a", outcome["action_id"])
	}
	if pct := outcome["params"].(map[string]any)["discount_pct"]; pct != float64(20) {
		t.Errorf("discount_pct = %v, want capped 20", pct)
	}

	// Flush the async recorder so traces are queryable.
	api.recorder.Close()

	// Fetch the trace.
	rec, body = api.do(t, "GET", "/v1/traces/"+traceID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get trace status = %d: %v", rec.Code, body)
	}
	if body["trace_id"] != traceID {
		t.Errorf("trace id = %v", body["trace_id"])
	}

	// List includes it.
	rec, body = api.do(t, "GET", "/v1/traces?tenant=acme&decision_type=discount", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list traces status = %d: %v", rec.Code, body)
	}
	if body["total"] != float64(2) {
		t.Errorf("total traces = %v, want 2", body["total"])
	}

	// Replay reproduces the outcome.
	rec, body = api.do(t, "POST", "/v1/traces/"+traceID+"/replay", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay status = %d: %v", rec.Code, body)
	}
	if body["identical"] != true {
		t.Errorf("replay diverged: %v", body)
	}
}

func TestAPICompileStructuralError(t *testing.T) {
	api := newTestAPI(t)

	doc := `
graph_id: broken
tenant: acme
decision_type: discount
revision: 1
nodes:
  - {id: entry, kind: decision}
  - {id: a, kind: action}
  - {id: b, kind: action}
edges:
  - {from: entry, to: a, kind: flows_to}
  - {from: entry, to: b, kind: flows_to}
  - {from: a, to: b, kind: requires}
  - {from: b, to: a, kind: requires}
`
	rec, body := api.do(t, "POST", "/v1/compile", doc)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %v", rec.Code, body)
	}
	errs := body["errors"].([]any)
	if len(errs) == 0 {
		t.Fatal("no errors reported")
	}
	found := false
	for _, e := range errs {
		issue := e.(map[string]any)
		if issue["kind"] == "cycle_detected" {
			found = true
			ids := issue["node_ids"].([]any)
			if len(ids) != 2 {
				t.Errorf("cycle issue names %v, want both nodes", ids)
			}
		}
	}
	if !found {
		t.Errorf("cycle_detected issue missing: %v", errs)
	}
}

func TestAPIActivateUnknownBlueprint(t *testing.T) {
	api := newTestAPI(t)
	rec, _ := api.do(t, "POST", "/v1/activate", map[string]any{
		"graph_id": "ghost", "revision": 3, "content_hash": "deadbeef",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAPIValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"execute missing fields", "POST", "/v1/execute", map[string]any{"tenant": "acme"}, http.StatusBadRequest},
		{"execute malformed body", "POST", "/v1/execute", "{not json", http.StatusBadRequest},
		{"activate empty ref", "POST", "/v1/activate", map[string]any{}, http.StatusBadRequest},
		{"activate malformed id", "POST", "/v1/activate", map[string]any{"blueprint_id": "nonsense"}, http.StatusBadRequest},
		{"ingest without attrs", "PUT", "/v1/contexts/acme/c1", map[string]any{}, http.StatusBadRequest},
		{"trace not found", "GET", "/v1/traces/missing", nil, http.StatusNotFound},
		{"replay not found", "POST", "/v1/traces/missing/replay", nil, http.StatusNotFound},
		{"list bad limit", "GET", "/v1/traces?limit=0", nil, http.StatusBadRequest},
		{"list bad since", "GET", "/v1/traces?since=yesterday", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := api.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %v", rec.Code, tt.wantStatus, body)
			}
		})
	}
}

func TestParseBlueprintID(t *testing.T) {
	ref, err := parseBlueprintID("checkout-discount@3#abc123def456")
	if err != nil {
		t.Fatalf("parseBlueprintID: %v", err)
	}
	if ref.GraphID != "checkout-discount" || ref.Revision != 3 || ref.ContentHash != "abc123def456" {
		t.Errorf("ref = %+v", ref)
	}

	for _, bad := range []string{"", "a@b#c", "a#c", "a@1#", "@1#x"} {
		if _, err := parseBlueprintID(bad); err == nil {
			t.Errorf("parseBlueprintID(%q) accepted malformed id", bad)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct{ path, want string }{
		{"/v1/execute", "/v1/execute"},
		{"/v1/traces/abc-123/replay", "/v1/traces"},
		{"/v1/contexts/acme/cust-1", "/v1/contexts"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		if got := routeLabel(tt.path); got != tt.want {
			t.Errorf("routeLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
