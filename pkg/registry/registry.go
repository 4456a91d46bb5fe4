// Package registry owns compiled blueprints and their activation state.
//
// Exactly one blueprint is active per (tenant, decision type) pair at a
// time. Activation is an atomic pointer swap: executing requests hold an
// immutable handle for their whole lifetime and can never observe a torn
// publish. The backing store persists blueprints and activations across
// restarts; the hot path never touches it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"praetor-hq/tribune/pkg/blueprint"
)

// ErrNotFound is returned when a blueprint or activation does not exist.
var ErrNotFound = errors.New("blueprint not found")

// Activation records which blueprint is active for a (tenant, decision
// type) pair.
type Activation struct {
	Tenant       string        `json:"tenant"`
	DecisionType string        `json:"decision_type"`
	Ref          blueprint.Ref `json:"ref"`
}

// Registry stores compiled blueprints and serves the active one per
// (tenant, decision type) through an atomic pointer.
type Registry struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex // guards the map shape, never the pointers
	active map[string]*atomic.Pointer[blueprint.Blueprint]
}

// New creates a registry over the given store.
func New(store Store) *Registry {
	return &Registry{
		store:  store,
		logger: slog.Default().With("component", "registry"),
		active: make(map[string]*atomic.Pointer[blueprint.Blueprint]),
	}
}

func activationKey(tenant, decisionType string) string {
	return tenant + "\x00" + decisionType
}

// Active returns the active blueprint for (tenant, decisionType). Lock-free
// on the hot path beyond a map read under mutex-free publication: the
// pointer cell for a key is created once and only ever swapped.
func (r *Registry) Active(tenant, decisionType string) (*blueprint.Blueprint, bool) {
	r.mu.Lock()
	cell, ok := r.active[activationKey(tenant, decisionType)]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	bp := cell.Load()
	if bp == nil {
		return nil, false
	}
	return bp, true
}

// Save persists a compiled blueprint. Saving is idempotent per content
// hash: re-saving an identical compilation is a no-op.
func (r *Registry) Save(ctx context.Context, bp *blueprint.Blueprint) error {
	if err := r.store.SaveBlueprint(ctx, bp); err != nil {
		return fmt.Errorf("saving blueprint %s: %w", bp.Ref, err)
	}
	r.logger.Info("blueprint stored",
		"ref", bp.Ref.String(),
		"tenant", bp.Tenant,
		"decision_type", bp.DecisionType,
	)
	return nil
}

// Get loads a stored blueprint by its full ref, prepared for execution.
func (r *Registry) Get(ctx context.Context, ref blueprint.Ref) (*blueprint.Blueprint, error) {
	bp, err := r.store.GetBlueprint(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := bp.Prepare(); err != nil {
		return nil, err
	}
	return bp, nil
}

// Activate makes the referenced blueprint the active one for its (tenant,
// decision type) pair. Re-activating the already-active ref is a no-op.
// The swap is atomic: a request resolves either the old blueprint or the
// new one, never a mixture.
func (r *Registry) Activate(ctx context.Context, ref blueprint.Ref) error {
	bp, err := r.Get(ctx, ref)
	if err != nil {
		return fmt.Errorf("activating %s: %w", ref, err)
	}

	key := activationKey(bp.Tenant, bp.DecisionType)
	r.mu.Lock()
	cell, ok := r.active[key]
	if !ok {
		cell = &atomic.Pointer[blueprint.Blueprint]{}
		r.active[key] = cell
	}
	r.mu.Unlock()

	if current := cell.Load(); current != nil && current.Ref == bp.Ref {
		r.logger.Debug("blueprint already active", "ref", ref.String())
		return nil
	}

	if err := r.store.SaveActivation(ctx, &Activation{
		Tenant:       bp.Tenant,
		DecisionType: bp.DecisionType,
		Ref:          bp.Ref,
	}); err != nil {
		return fmt.Errorf("persisting activation of %s: %w", ref, err)
	}

	cell.Store(bp)
	r.logger.Info("blueprint activated",
		"ref", ref.String(),
		"tenant", bp.Tenant,
		"decision_type", bp.DecisionType,
	)
	return nil
}

// Restore reloads persisted activations into memory. Called once at
// startup, before the registry serves traffic.
func (r *Registry) Restore(ctx context.Context) error {
	activations, err := r.store.ListActivations(ctx)
	if err != nil {
		return fmt.Errorf("listing activations: %w", err)
	}
	for _, act := range activations {
		if err := r.Activate(ctx, act.Ref); err != nil {
			return fmt.Errorf("restoring %s/%s: %w", act.Tenant, act.DecisionType, err)
		}
	}
	if len(activations) > 0 {
		r.logger.Info("activations restored", "count", len(activations))
	}
	return nil
}

// Ping verifies the backing store answers queries. Used by readiness
// checks.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.store.ListActivations(ctx)
	return err
}

// Close closes the backing store.
func (r *Registry) Close() error {
	return r.store.Close()
}
