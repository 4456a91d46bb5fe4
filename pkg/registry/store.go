package registry

import (
	"context"
	"sync"

	"praetor-hq/tribune/pkg/blueprint"
)

// Store persists blueprints and activation state. Implementations are
// control-plane only: the decision hot path never calls a Store.
type Store interface {
	// SaveBlueprint stores a compiled blueprint, keyed by its full ref.
	// Re-saving the same ref overwrites the identical content.
	SaveBlueprint(ctx context.Context, bp *blueprint.Blueprint) error

	// GetBlueprint loads a blueprint by its full ref. Returns ErrNotFound
	// when no such blueprint is stored.
	GetBlueprint(ctx context.Context, ref blueprint.Ref) (*blueprint.Blueprint, error)

	// ListBlueprints lists stored blueprint refs for a tenant, newest
	// revision first. An empty tenant lists all.
	ListBlueprints(ctx context.Context, tenant string) ([]blueprint.Ref, error)

	// SaveActivation upserts the activation for its (tenant, decision
	// type) pair.
	SaveActivation(ctx context.Context, act *Activation) error

	// ListActivations returns all persisted activations.
	ListActivations(ctx context.Context) ([]*Activation, error)

	// Close releases store resources.
	Close() error
}

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	blueprints  map[blueprint.Ref]*blueprint.Blueprint
	activations map[string]*Activation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blueprints:  make(map[blueprint.Ref]*blueprint.Blueprint),
		activations: make(map[string]*Activation),
	}
}

// SaveBlueprint implements Store.
func (s *MemoryStore) SaveBlueprint(_ context.Context, bp *blueprint.Blueprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blueprints[bp.Ref] = bp
	return nil
}

// GetBlueprint implements Store.
func (s *MemoryStore) GetBlueprint(_ context.Context, ref blueprint.Ref) (*blueprint.Blueprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bp, ok := s.blueprints[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return bp, nil
}

// ListBlueprints implements Store.
func (s *MemoryStore) ListBlueprints(_ context.Context, tenant string) ([]blueprint.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var refs []blueprint.Ref
	for ref, bp := range s.blueprints {
		if tenant == "" || bp.Tenant == tenant {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// SaveActivation implements Store.
func (s *MemoryStore) SaveActivation(_ context.Context, act *Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activations[act.Tenant+"\x00"+act.DecisionType] = act
	return nil
}

// ListActivations implements Store.
func (s *MemoryStore) ListActivations(_ context.Context) ([]*Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Activation, 0, len(s.activations))
	for _, act := range s.activations {
		out = append(out, act)
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
