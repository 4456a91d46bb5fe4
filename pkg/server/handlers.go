package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"praetor-hq/tribune/pkg/audit"
	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/compiler"
	"praetor-hq/tribune/pkg/config"
	"praetor-hq/tribune/pkg/graph"
	"praetor-hq/tribune/pkg/graph/parser"
	"praetor-hq/tribune/pkg/registry"
	"praetor-hq/tribune/pkg/replay"
	"praetor-hq/tribune/pkg/runtime"
	"praetor-hq/tribune/pkg/snapshot"
	"praetor-hq/tribune/pkg/telemetry/tracing"
)

// Handlers implements the v1 API.
type Handlers struct {
	config   *config.Config
	logger   *slog.Logger
	parser   *parser.Parser
	compiler *compiler.Compiler
	registry *registry.Registry
	cache    *snapshot.Cache
	engine   *runtime.Engine

	// recorder, storage, and replayer are nil when auditing is disabled.
	recorder *audit.Recorder
	storage  audit.Storage
	replayer *replay.Replayer

	tracer *tracing.Tracer // nil when tracing is disabled
}

// NewHandlers wires the API handlers.
func NewHandlers(cfg *config.Config, comp *compiler.Compiler, reg *registry.Registry, cache *snapshot.Cache, engine *runtime.Engine, recorder *audit.Recorder, storage audit.Storage, replayer *replay.Replayer) *Handlers {
	return &Handlers{
		config:   cfg,
		logger:   slog.Default().With("component", "api"),
		parser:   parser.NewParser().WithMaxFileSize(cfg.Server.MaxBodyBytes),
		compiler: comp,
		registry: reg,
		cache:    cache,
		engine:   engine,
		recorder: recorder,
		storage:  storage,
		replayer: replayer,
	}
}

// SetTracer installs the span source. Must be called before serving traffic;
// handlers tolerate a nil tracer.
func (h *Handlers) SetTracer(t *tracing.Tracer) {
	h.tracer = t
}

type issueWire struct {
	Kind       string   `json:"kind"`
	Message    string   `json:"message"`
	NodeIDs    []string `json:"node_ids,omitempty"`
	Location   string   `json:"location,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

func wireIssues(issues []*graph.Issue) []issueWire {
	out := make([]issueWire, 0, len(issues))
	for _, is := range issues {
		w := issueWire{
			Kind:       string(is.Kind),
			Message:    is.Message,
			NodeIDs:    is.NodeIDs,
			Suggestion: is.Suggestion,
		}
		if is.Location.IsValid() {
			w.Location = is.Location.String()
		}
		out = append(out, w)
	}
	return out
}

// Compile accepts a graph document (YAML or JSON) and compiles it. The
// blueprint is stored but not activated.
func (h *Handlers) Compile(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, h.config.Server.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if int64(len(data)) > h.config.Server.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "graph document too large")
		return
	}

	g, err := h.parser.ParseBytes(data, "request")
	if err != nil {
		writeError(w, http.StatusBadRequest, "parse graph: "+err.Error())
		return
	}

	_, span := h.tracer.Start(r.Context(), "tribune.compile")
	result, err := h.compiler.Compile(g)
	span.End()
	if err != nil {
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"stage":  string(ce.Stage),
				"errors": wireIssues(ce.Issues.Issues),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.registry.Save(r.Context(), result.Blueprint); err != nil {
		writeError(w, http.StatusInternalServerError, "store blueprint: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"blueprint": map[string]any{
			"graph_id":      result.Blueprint.Ref.GraphID,
			"revision":      result.Blueprint.Ref.Revision,
			"content_hash":  result.Blueprint.Ref.ContentHash,
			"tenant":        result.Blueprint.Tenant,
			"decision_type": result.Blueprint.DecisionType,
			"steps":         len(result.Blueprint.Steps),
		},
		"warnings": wireIssues(result.Warnings),
	})
}

type activateRequest struct {
	BlueprintID string `json:"blueprint_id,omitempty"`

	GraphID     string `json:"graph_id,omitempty"`
	Revision    int    `json:"revision,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// parseBlueprintID splits "graphID@revision#contentHash". The hash must be
// complete; the abbreviated display form is not accepted.
func parseBlueprintID(id string) (blueprint.Ref, error) {
	at := strings.LastIndex(id, "@")
	hash := strings.LastIndex(id, "#")
	if at < 1 || hash < at+2 || hash == len(id)-1 {
		return blueprint.Ref{}, fmt.Errorf("malformed blueprint id %q, want graph@revision#hash", id)
	}
	rev, err := strconv.Atoi(id[at+1 : hash])
	if err != nil {
		return blueprint.Ref{}, fmt.Errorf("malformed revision in blueprint id %q", id)
	}
	return blueprint.Ref{
		GraphID:     id[:at],
		Revision:    rev,
		ContentHash: id[hash+1:],
	}, nil
}

// Activate atomically routes a tenant and decision type to a stored
// blueprint. Re-activating the active blueprint is a no-op.
func (h *Handlers) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}

	ref := blueprint.Ref{
		GraphID:     req.GraphID,
		Revision:    req.Revision,
		ContentHash: req.ContentHash,
	}
	if req.BlueprintID != "" {
		var err error
		if ref, err = parseBlueprintID(req.BlueprintID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if ref.GraphID == "" || ref.ContentHash == "" {
		writeError(w, http.StatusBadRequest, "graph_id and content_hash are required")
		return
	}

	if err := h.registry.Activate(r.Context(), ref); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "blueprint not found: "+ref.String())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"activated": ref})
}

// Execute runs one decision request under the configured deadline. Every
// outcome, timeouts included, is audited.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req runtime.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if req.Tenant == "" || req.DecisionType == "" || req.EntityID == "" {
		writeError(w, http.StatusBadRequest, "tenant, decision_type, and entity_id are required")
		return
	}

	ctx, cancel := contextWithTimeout(r, h.config.Engine.ExecuteTimeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "tribune.execute")
	defer span.End()

	resp, err := h.engine.Execute(ctx, &req)
	if err != nil {
		var de *runtime.DeadlineError
		var re *runtime.ResolutionError
		var oe *runtime.OverrideError
		switch {
		case errors.As(err, &de):
			traceID := de.TraceID
			if traceID == "" {
				traceID = uuid.New().String()
			}
			h.record(audit.Timeout(&req, traceID, de.Elapsed))
			writeJSON(w, http.StatusGatewayTimeout, map[string]any{
				"trace_id": traceID,
				"outcome":  map[string]any{"kind": string(runtime.OutcomeTimeout)},
				"error":    "deadline exceeded",
			})
		case errors.As(err, &re):
			writeError(w, http.StatusServiceUnavailable, re.Error())
		case errors.As(err, &oe):
			writeError(w, http.StatusUnauthorized, oe.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.record(audit.FromResponse(resp, &req))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) record(rec *audit.Record) {
	if h.recorder != nil {
		h.recorder.Record(rec)
	}
}

type ingestRequest struct {
	Attrs map[string]any `json:"attrs"`

	// DecisionType selects the dictionary to compute the mask through.
	// Without it the mask stays empty and the runtime computes it on
	// first use.
	DecisionType string `json:"decision_type,omitempty"`
}

// IngestContext is the snapshot ingest boundary: full-replacement write of
// an entity's context, freshness stamped, mask co-located when a dictionary
// is available.
func (h *Handlers) IngestContext(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	entityID := r.PathValue("entity")
	if tenant == "" || entityID == "" {
		writeError(w, http.StatusBadRequest, "tenant and entity are required")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode request: "+err.Error())
		return
	}
	if req.Attrs == nil {
		writeError(w, http.StatusBadRequest, "attrs is required")
		return
	}

	var dict *snapshot.Dictionary
	if req.DecisionType != "" {
		if bp, ok := h.registry.Active(tenant, req.DecisionType); ok {
			dict = bp.Dictionary
		}
	}

	snap := snapshot.New(tenant, entityID, req.Attrs, dict)
	h.cache.Put(snap)

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id": snap.SnapshotID,
		"fresh_at":    snap.FreshAt,
		"mask_set":    dict != nil,
	})
}

// GetTrace fetches one audit record by trace id.
func (h *Handlers) GetTrace(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusNotFound, "auditing is disabled")
		return
	}
	rec, err := h.storage.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trace not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListTraces queries audit records by tenant, decision type, entity,
// outcome, and time range, newest first.
func (h *Handlers) ListTraces(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		writeError(w, http.StatusNotFound, "auditing is disabled")
		return
	}

	q := &audit.Query{
		Tenant:       r.URL.Query().Get("tenant"),
		DecisionType: r.URL.Query().Get("decision_type"),
		EntityID:     r.URL.Query().Get("entity_id"),
		OutcomeKind:  r.URL.Query().Get("outcome"),
		Limit:        100,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be in [1,1000]")
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must not be negative")
			return
		}
		q.Offset = n
	}
	for param, dst := range map[string]*time.Time{"since": &q.Since, "until": &q.Until} {
		if v := r.URL.Query().Get(param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, param+" must be RFC3339")
				return
			}
			*dst = t
		}
	}

	records, err := h.storage.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := h.storage.Count(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
	})
}

// Replay recomputes a recorded decision from its pinned blueprint and
// embedded context and reports whether the outcome hash matches.
func (h *Handlers) Replay(w http.ResponseWriter, r *http.Request) {
	if h.replayer == nil {
		writeError(w, http.StatusNotFound, "auditing is disabled")
		return
	}
	result, err := h.replayer.Replay(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, audit.ErrNotFound):
			writeError(w, http.StatusNotFound, "trace not found")
		case errors.Is(err, registry.ErrNotFound):
			writeError(w, http.StatusConflict, "pinned blueprint no longer stored")
		default:
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// contextWithTimeout applies the execute deadline on top of whatever the
// inbound request context already carries.
func contextWithTimeout(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
