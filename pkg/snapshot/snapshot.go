package snapshot

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable per-entity bundle of resolved attributes plus the
// precomputed attribute bitmask and a freshness timestamp. Snapshots are
// superseded whole, never patched: a new snapshot fully replaces the prior
// one for the same (tenant, entity) key.
type Snapshot struct {
	// Tenant scopes the snapshot. Blueprints only execute against
	// same-tenant snapshots.
	Tenant string `json:"tenant"`

	// EntityID identifies the entity (account, user, quote, ...).
	EntityID string `json:"entity_id"`

	// SnapshotID uniquely identifies this snapshot generation. Decision
	// responses pin it for replay.
	SnapshotID string `json:"snapshot_id"`

	// Attrs are the resolved attributes.
	Attrs map[string]any `json:"attrs"`

	// Mask is the precomputed attribute bitmask, co-located with the
	// snapshot by the write path.
	Mask Mask `json:"mask"`

	// DictHash identifies the dictionary the mask was computed through.
	// On mismatch with the executing blueprint's dictionary, the runtime
	// recomputes the mask (slow path, still correct).
	DictHash string `json:"dict_hash"`

	// FreshAt is when the write path materialized this snapshot.
	FreshAt time.Time `json:"fresh_at"`
}

// New creates a snapshot with a fresh id and the mask computed through the
// given dictionary. dict may be nil, in which case the mask is empty and the
// runtime computes it at execute time.
func New(tenant, entityID string, attrs map[string]any, dict *Dictionary) *Snapshot {
	s := &Snapshot{
		Tenant:     tenant,
		EntityID:   entityID,
		SnapshotID: uuid.New().String(),
		Attrs:      attrs,
		FreshAt:    time.Now().UTC(),
	}
	if dict != nil {
		s.Mask = dict.MaskOf(attrs)
		s.DictHash = dict.Hash()
	}
	return s
}

// Default returns the anonymous default context used on a cache miss: no
// attributes, zero mask, and an empty snapshot id so responses can flag that
// no real context backed the decision.
func Default(tenant, entityID string) *Snapshot {
	return &Snapshot{
		Tenant:   tenant,
		EntityID: entityID,
		Attrs:    map[string]any{},
		FreshAt:  time.Time{},
	}
}

// IsDefault reports whether this is the anonymous default context.
func (s *Snapshot) IsDefault() bool {
	return s.SnapshotID == ""
}

// Age returns how stale the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s.FreshAt.IsZero() {
		return 0
	}
	return now.Sub(s.FreshAt)
}

// WithOverrides returns a copy of the snapshot with the override attributes
// layered on top and the mask recomputed through the given dictionary. The
// receiver is not modified; override scope is a single request.
func (s *Snapshot) WithOverrides(overrides map[string]any, dict *Dictionary) *Snapshot {
	if len(overrides) == 0 {
		return s
	}

	merged := make(map[string]any, len(s.Attrs)+len(overrides))
	for k, v := range s.Attrs {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	out := &Snapshot{
		Tenant:     s.Tenant,
		EntityID:   s.EntityID,
		SnapshotID: s.SnapshotID,
		Attrs:      merged,
		FreshAt:    s.FreshAt,
	}
	if dict != nil {
		out.Mask = dict.MaskOf(merged)
		out.DictHash = dict.Hash()
	}
	return out
}
