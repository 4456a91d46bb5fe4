// Package replay recomputes audited decisions from their pinned identities.
//
// A replay loads the audit record, fetches the exact blueprint the record
// pins, rebuilds the snapshot from the embedded attributes, and re-runs
// evaluation. Because evaluation is pure over (blueprint, snapshot,
// inputs), an unchanged system always reproduces the recorded outcome;
// divergence means the stored blueprint no longer matches what decided.
package replay

import (
	"context"
	"fmt"
	"log/slog"

	"praetor-hq/tribune/pkg/audit"
	"praetor-hq/tribune/pkg/registry"
	"praetor-hq/tribune/pkg/runtime"
	"praetor-hq/tribune/pkg/snapshot"
)

// Result compares a recorded decision with its recomputation.
type Result struct {
	TraceID string `json:"trace_id"`

	// Identical is true when the replayed outcome hash matches the
	// recorded one.
	Identical bool `json:"identical"`

	RecordedHash string `json:"recorded_hash"`
	ReplayedHash string `json:"replayed_hash"`

	RecordedOutcome runtime.Outcome `json:"recorded_outcome"`
	ReplayedOutcome runtime.Outcome `json:"replayed_outcome"`

	// Explain is the replayed explanation trail, for diagnosing a
	// divergence.
	Explain *runtime.Explain `json:"explain,omitempty"`
}

// Replayer recomputes audited decisions.
type Replayer struct {
	registry *registry.Registry
	storage  audit.Storage
	logger   *slog.Logger
}

// New creates a replayer.
func New(reg *registry.Registry, storage audit.Storage) *Replayer {
	return &Replayer{
		registry: reg,
		storage:  storage,
		logger:   slog.Default().With("component", "replay"),
	}
}

// Replay recomputes the decision recorded under traceID and reports whether
// the outcome is identical.
func (r *Replayer) Replay(ctx context.Context, traceID string) (*Result, error) {
	record, err := r.storage.Get(ctx, traceID)
	if err != nil {
		return nil, fmt.Errorf("loading audit record %s: %w", traceID, err)
	}
	return r.ReplayRecord(ctx, record)
}

// ReplayRecord recomputes an already-loaded record.
func (r *Replayer) ReplayRecord(ctx context.Context, record *audit.Record) (*Result, error) {
	if record.BlueprintRef.ContentHash == "" {
		return nil, fmt.Errorf("record %s pins no blueprint (outcome %s), nothing to replay",
			record.TraceID, record.Outcome.Kind)
	}

	bp, err := r.registry.Get(ctx, record.BlueprintRef)
	if err != nil {
		return nil, fmt.Errorf("loading pinned blueprint %s: %w", record.BlueprintRef, err)
	}

	// Rebuild the snapshot from the embedded attributes. The mask is
	// recomputed through the blueprint's dictionary during evaluation.
	snap := &snapshot.Snapshot{
		Tenant:     record.Tenant,
		EntityID:   record.EntityID,
		SnapshotID: record.SnapshotID,
		Attrs:      record.ContextAttrs,
	}

	ev, err := runtime.Evaluate(ctx, bp, snap, record.Inputs, true)
	if err != nil {
		return nil, fmt.Errorf("replaying %s: %w", record.TraceID, err)
	}

	result := &Result{
		TraceID:         record.TraceID,
		RecordedHash:    record.OutcomeHash,
		ReplayedHash:    ev.Outcome.Hash(),
		RecordedOutcome: record.Outcome,
		ReplayedOutcome: ev.Outcome,
		Explain:         ev.Explain,
	}
	result.Identical = result.RecordedHash == result.ReplayedHash

	if !result.Identical {
		r.logger.Warn("replay diverged",
			"trace_id", record.TraceID,
			"blueprint", record.BlueprintRef.String(),
			"recorded_hash", result.RecordedHash,
			"replayed_hash", result.ReplayedHash,
		)
	}
	return result, nil
}
