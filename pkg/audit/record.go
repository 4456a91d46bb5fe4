// Package audit turns every decision response into an immutable, queryable
// record keyed by trace id. Records embed the evaluated context attributes
// and dynamic inputs, so a decision replays bit-for-bit without the
// original snapshot store.
package audit

import (
	"context"
	"errors"
	"time"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/runtime"
)

// ErrNotFound is returned when no record exists for a trace id.
var ErrNotFound = errors.New("audit record not found")

// Record is one immutable decision audit record.
type Record struct {
	TraceID      string `json:"trace_id"`
	Tenant       string `json:"tenant"`
	DecisionType string `json:"decision_type"`
	EntityID     string `json:"entity_id"`

	// BlueprintRef and SnapshotID pin the exact identities the decision
	// was computed from.
	BlueprintRef blueprint.Ref `json:"blueprint_ref"`
	SnapshotID   string        `json:"snapshot_id,omitempty"`

	// ContextAttrs and Inputs are the full evaluation inputs, embedded
	// for self-contained replay.
	ContextAttrs map[string]any `json:"context_attrs,omitempty"`
	Inputs       map[string]any `json:"inputs,omitempty"`

	Outcome      runtime.Outcome       `json:"outcome"`
	OutcomeHash  string                `json:"outcome_hash"`
	Alternatives []runtime.Alternative `json:"alternatives,omitempty"`
	Explain      *runtime.Explain      `json:"explain,omitempty"`

	RecordedAt time.Time     `json:"recorded_at"`
	Duration   time.Duration `json:"duration"`
}

// FromResponse builds a record from a decision response and its request.
func FromResponse(resp *runtime.Response, req *runtime.Request) *Record {
	return &Record{
		TraceID:      resp.TraceID,
		Tenant:       resp.Tenant,
		DecisionType: resp.DecisionType,
		EntityID:     resp.EntityID,
		BlueprintRef: resp.BlueprintRef,
		SnapshotID:   resp.SnapshotID,
		ContextAttrs: resp.ContextAttrs,
		Inputs:       req.Inputs,
		Outcome:      resp.Outcome,
		OutcomeHash:  resp.Outcome.Hash(),
		Alternatives: resp.Alternatives,
		Explain:      resp.Explain,
		RecordedAt:   resp.EvaluatedAt,
		Duration:     resp.Duration,
	}
}

// Timeout builds the record of a request that exceeded its deadline and
// failed closed. Timeouts are audited like any other outcome.
func Timeout(req *runtime.Request, traceID string, elapsed time.Duration) *Record {
	out := runtime.Outcome{Kind: runtime.OutcomeTimeout}
	return &Record{
		TraceID:      traceID,
		Tenant:       req.Tenant,
		DecisionType: req.DecisionType,
		EntityID:     req.EntityID,
		Inputs:       req.Inputs,
		Outcome:      out,
		OutcomeHash:  out.Hash(),
		RecordedAt:   time.Now().UTC(),
		Duration:     elapsed,
	}
}

// Query filters audit records. Zero fields match everything.
type Query struct {
	Tenant       string
	DecisionType string
	EntityID     string
	OutcomeKind  string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// Storage persists audit records.
type Storage interface {
	// Store writes one record. Records are immutable: storing an
	// existing trace id is an error.
	Store(ctx context.Context, record *Record) error

	// Get fetches a record by trace id. Returns ErrNotFound when absent.
	Get(ctx context.Context, traceID string) (*Record, error)

	// Query returns matching records, newest first.
	Query(ctx context.Context, q *Query) ([]*Record, error)

	// Count returns the number of matching records.
	Count(ctx context.Context, q *Query) (int64, error)

	// DeleteBefore removes records older than the cutoff, returning how
	// many were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOverCap removes the oldest records beyond max, returning how
	// many were removed.
	DeleteOverCap(ctx context.Context, max int64) (int64, error)

	// Close releases storage resources.
	Close() error
}
