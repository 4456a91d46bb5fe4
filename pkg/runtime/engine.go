package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/snapshot"
)

// Resolver resolves the active blueprint for a (tenant, decision type)
// pair. Implementations must return prepared blueprints and must not block;
// activation swaps happen behind an atomic pointer.
type Resolver interface {
	Active(tenant, decisionType string) (*blueprint.Blueprint, bool)
}

// Metrics receives execution observations. Implementations must be
// non-blocking; a nil-safe noop is used when unset.
type Metrics interface {
	ObserveExecute(tenant, decisionType, outcome string, duration time.Duration)
	AddGuardFaults(n int)
	IncMaskRecompute()
}

// Config configures the engine.
type Config struct {
	// FailSafeDefaults controls recovery from resolution failures: when
	// true (the default), a missing blueprint or unreachable context
	// store fails closed to the no-action outcome instead of surfacing a
	// ResolutionError.
	FailSafeDefaults bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{FailSafeDefaults: true}
}

// Engine executes decision requests against active blueprints. It is
// stateless per request: all shared state lives in the resolver and the
// snapshot cache, both read-only from the engine's perspective.
type Engine struct {
	config   *Config
	resolver Resolver
	cache    *snapshot.Cache
	verifier *snapshot.OverrideVerifier // nil disables override tokens
	logger   *slog.Logger
	metrics  Metrics
}

// NewEngine creates an engine. verifier may be nil to reject all override
// tokens.
func NewEngine(config *Config, resolver Resolver, cache *snapshot.Cache, verifier *snapshot.OverrideVerifier) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		config:   config,
		resolver: resolver,
		cache:    cache,
		verifier: verifier,
		logger:   slog.Default().With("component", "runtime"),
	}
}

// SetMetrics installs a metrics sink.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// Execute runs one decision request end to end: resolve the blueprint and
// snapshot, evaluate, and assemble the pinned response. A deadline expiry
// fails closed with a *DeadlineError and no partial response.
func (e *Engine) Execute(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	traceID := uuid.New().String()

	bp, ok := e.resolver.Active(req.Tenant, req.DecisionType)
	if !ok {
		if !e.config.FailSafeDefaults {
			return nil, &ResolutionError{
				Tenant:       req.Tenant,
				DecisionType: req.DecisionType,
				EntityID:     req.EntityID,
				Resource:     "blueprint",
			}
		}
		e.logger.Warn("no active blueprint, failing closed",
			"tenant", req.Tenant, "decision_type", req.DecisionType)
		resp := e.respond(req, traceID, blueprint.Ref{}, "", snapshot.SourceDefault,
			&Evaluation{Outcome: Outcome{Kind: OutcomeNoDecision}}, start)
		e.observe(req, resp, start)
		return resp, nil
	}

	snap, source, err := e.cache.Get(ctx, req.Tenant, req.EntityID)
	if err != nil {
		if !e.config.FailSafeDefaults {
			return nil, &ResolutionError{
				Tenant:       req.Tenant,
				DecisionType: req.DecisionType,
				EntityID:     req.EntityID,
				Resource:     "context",
				Cause:        err,
			}
		}
		e.logger.Warn("context resolution failed, failing closed",
			"tenant", req.Tenant, "entity_id", req.EntityID, "error", err)
		snap = snapshot.Default(req.Tenant, req.EntityID)
		source = snapshot.SourceDefault
	}
	if snap.IsDefault() && bp.OnMissingContext == "fail" {
		return nil, &ResolutionError{
			Tenant:       req.Tenant,
			DecisionType: req.DecisionType,
			EntityID:     req.EntityID,
			Resource:     "context",
			Cause:        snapshot.ErrNotFound,
		}
	}

	overridden := false
	if req.OverrideToken != "" {
		if e.verifier == nil {
			return nil, &OverrideError{Cause: snapshot.ErrOverrideDisabled}
		}
		overrides, err := e.verifier.Verify(req.OverrideToken, req.Tenant, req.EntityID)
		if err != nil {
			return nil, &OverrideError{Cause: err}
		}
		snap = snap.WithOverrides(overrides, bp.Dictionary)
		overridden = true
	}

	ev, err := Evaluate(ctx, bp, snap, req.Inputs, req.Explain)
	if err != nil {
		elapsed := time.Since(start)
		e.observeOutcome(req, OutcomeTimeout, elapsed)
		return nil, &DeadlineError{TraceID: traceID, Elapsed: elapsed}
	}

	if ev.Explain != nil {
		ev.Explain.ContextSource = source
		ev.Explain.DefaultContext = snap.IsDefault()
		ev.Explain.Overridden = overridden
		ev.Explain.MaskRecomputed = ev.MaskRecomputed
	}
	if e.metrics != nil {
		if ev.Faults > 0 {
			e.metrics.AddGuardFaults(ev.Faults)
		}
		if ev.MaskRecomputed {
			e.metrics.IncMaskRecompute()
		}
	}

	resp := e.respond(req, traceID, bp.Ref, snap.SnapshotID, source, ev, start)
	e.observe(req, resp, start)

	e.logger.Debug("decision executed",
		"trace_id", traceID,
		"tenant", req.Tenant,
		"decision_type", req.DecisionType,
		"entity_id", req.EntityID,
		"outcome", string(resp.Outcome.Kind),
		"action_id", resp.Outcome.ActionID,
		"blueprint", bp.Ref.String(),
		"context_source", string(source),
		"duration_us", time.Since(start).Microseconds(),
	)
	return resp, nil
}

func (e *Engine) respond(req *Request, traceID string, ref blueprint.Ref, snapshotID string, source snapshot.Source, ev *Evaluation, start time.Time) *Response {
	if ev.Explain != nil && ev.Explain.ContextSource == "" {
		ev.Explain.ContextSource = source
	}
	return &Response{
		TraceID:      traceID,
		Tenant:       req.Tenant,
		DecisionType: req.DecisionType,
		EntityID:     req.EntityID,
		Outcome:      ev.Outcome,
		Alternatives: ev.Alternatives,
		BlueprintRef: ref,
		SnapshotID:   snapshotID,
		Explain:      ev.Explain,
		ContextAttrs: ev.attrs,
		EvaluatedAt:  start.UTC(),
		Duration:     time.Since(start),
	}
}

func (e *Engine) observe(req *Request, resp *Response, start time.Time) {
	e.observeOutcome(req, resp.Outcome.Kind, time.Since(start))
}

func (e *Engine) observeOutcome(req *Request, kind OutcomeKind, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.ObserveExecute(req.Tenant, req.DecisionType, string(kind), duration)
	}
}
