package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"praetor-hq/tribune/pkg/blueprint"
	"praetor-hq/tribune/pkg/runtime"
)

func testRecord(traceID string, recordedAt time.Time) *Record {
	out := runtime.Outcome{
		Kind:     runtime.OutcomeDecision,
		ActionID: "offer-a",
		Params:   map[string]any{"discount_pct": float64(20)},
	}
	return &Record{
		TraceID:      traceID,
		Tenant:       "acme",
		DecisionType: "discount",
		EntityID:     "cust-1",
		BlueprintRef: blueprint.Ref{GraphID: "checkout-discount", Revision: 1, ContentHash: "aaa"},
		SnapshotID:   "snap-1",
		ContextAttrs: map[string]any{"tier": "premium"},
		Outcome:      out,
		OutcomeHash:  out.Hash(),
		RecordedAt:   recordedAt,
		Duration:     2 * time.Millisecond,
	}
}

func TestRecorderDrainsOnClose(t *testing.T) {
	storage := NewMemoryStorage()
	recorder := NewRecorder(storage, &RecorderConfig{
		Enabled:      true,
		Buffer:       64,
		WriteTimeout: time.Second,
	})

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		recorder.Record(testRecord(traceID(i), now.Add(time.Duration(i)*time.Second)))
	}
	recorder.Close()

	count, err := storage.Count(context.Background(), &Query{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 10 {
		t.Errorf("expected all 10 records flushed on close, got %d", count)
	}
}

func traceID(i int) string {
	return "trace-" + string(rune('a'+i))
}

func TestRecorderDisabled(t *testing.T) {
	storage := NewMemoryStorage()
	recorder := NewRecorder(storage, &RecorderConfig{Enabled: false, Buffer: 1, WriteTimeout: time.Second})
	recorder.Record(testRecord("trace-x", time.Now()))
	recorder.Close()

	if count, _ := storage.Count(context.Background(), &Query{}); count != 0 {
		t.Errorf("disabled recorder stored %d records", count)
	}
}

func TestMemoryStorageQueryAndRetention(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		if err := storage.Store(ctx, testRecord(traceID(i), base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	// Immutability: same trace id again is an error.
	if err := storage.Store(ctx, testRecord(traceID(0), base)); err == nil {
		t.Error("expected duplicate trace id to be rejected")
	}

	records, err := storage.Query(ctx, &Query{Tenant: "acme", Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 || !records[0].RecordedAt.After(records[1].RecordedAt) {
		t.Errorf("expected 2 records newest first, got %d", len(records))
	}

	if _, err := storage.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	pruner := NewPruner(storage, &RetentionConfig{MaxRecords: 3})
	removed, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Errorf("expected 2 removed by cap, got %d", removed)
	}
	// The newest records survive.
	if _, err := storage.Get(ctx, traceID(4)); err != nil {
		t.Error("newest record pruned by cap")
	}
	if _, err := storage.Get(ctx, traceID(0)); !errors.Is(err, ErrNotFound) {
		t.Error("oldest record survived the cap")
	}

	removed, err = NewPruner(storage, &RetentionConfig{MaxAge: time.Minute}).Prune(ctx)
	if err != nil {
		t.Fatalf("Prune by age: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected remaining 3 removed by age, got %d", removed)
	}
}

func TestSQLiteStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage, err := NewSQLiteStorage(SQLiteConfig{Path: t.TempDir() + "/audit.db"})
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	defer storage.Close()

	record := testRecord("trace-sql", time.Now().UTC().Truncate(time.Second))
	if err := storage.Store(ctx, record); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// Immutability at the schema level.
	if err := storage.Store(ctx, record); err == nil {
		t.Error("expected primary key violation on duplicate trace id")
	}

	got, err := storage.Get(ctx, "trace-sql")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OutcomeHash != record.OutcomeHash || got.Outcome.ActionID != "offer-a" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.ContextAttrs["tier"] != "premium" {
		t.Error("embedded context attrs lost in round trip")
	}

	records, err := storage.Query(ctx, &Query{Tenant: "acme", OutcomeKind: "decision"})
	if err != nil || len(records) != 1 {
		t.Fatalf("Query: %v, %d records", err, len(records))
	}
	count, err := storage.Count(ctx, &Query{Tenant: "other"})
	if err != nil || count != 0 {
		t.Fatalf("Count: %v %d", err, count)
	}
}
