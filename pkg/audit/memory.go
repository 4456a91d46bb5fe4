package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage for tests and ephemeral
// deployments.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*Record)}
}

// Store implements Storage.
func (s *MemoryStorage) Store(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.TraceID]; exists {
		return fmt.Errorf("audit record %s already exists", record.TraceID)
	}
	s.records[record.TraceID] = record
	return nil
}

// Get implements Storage.
func (s *MemoryStorage) Get(_ context.Context, traceID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[traceID]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

func (s *MemoryStorage) match(q *Query) []*Record {
	var out []*Record
	for _, r := range s.records {
		if q.Tenant != "" && r.Tenant != q.Tenant {
			continue
		}
		if q.DecisionType != "" && r.DecisionType != q.DecisionType {
			continue
		}
		if q.EntityID != "" && r.EntityID != q.EntityID {
			continue
		}
		if q.OutcomeKind != "" && string(r.Outcome.Kind) != q.OutcomeKind {
			continue
		}
		if !q.Since.IsZero() && r.RecordedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !r.RecordedAt.Before(q.Until) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return out
}

// Query implements Storage.
func (s *MemoryStorage) Query(_ context.Context, q *Query) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.match(q)
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count implements Storage.
func (s *MemoryStorage) Count(_ context.Context, q *Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.match(q))), nil
}

// DeleteBefore implements Storage.
func (s *MemoryStorage) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.records {
		if r.RecordedAt.Before(cutoff) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// DeleteOverCap implements Storage.
func (s *MemoryStorage) DeleteOverCap(_ context.Context, max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int64(len(s.records)) <= max {
		return 0, nil
	}
	all := s.match(&Query{})
	var n int64
	for _, r := range all[max:] {
		delete(s.records, r.TraceID)
		n++
	}
	return n, nil
}

// Close implements Storage.
func (s *MemoryStorage) Close() error { return nil }
