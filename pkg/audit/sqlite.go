package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// schemaVersion is the current audit schema version, tracked via
// PRAGMA user_version.
const schemaVersion = 1

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	trace_id      TEXT PRIMARY KEY,
	tenant        TEXT NOT NULL,
	decision_type TEXT NOT NULL,
	entity_id     TEXT NOT NULL,
	graph_id      TEXT NOT NULL,
	revision      INTEGER NOT NULL,
	content_hash  TEXT NOT NULL,
	snapshot_id   TEXT,
	outcome_kind  TEXT NOT NULL,
	outcome_hash  TEXT NOT NULL,
	recorded_at   TIMESTAMP NOT NULL,
	duration_us   INTEGER NOT NULL,
	document      BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_tenant_time
	ON audit_records(tenant, decision_type, recorded_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_entity
	ON audit_records(tenant, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_time
	ON audit_records(recorded_at);
`

// SQLiteConfig configures the audit storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// SQLiteStorage persists audit records in SQLite with WAL journaling. The
// full record is stored as a JSON document; the indexed columns exist only
// to serve queries and retention.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the audit database.
func NewSQLiteStorage(cfg SQLiteConfig) (*SQLiteStorage, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("audit db schema version %d is newer than supported %d", version, schemaVersion)
	}
	if _, err := s.db.Exec(auditSchema); err != nil {
		return fmt.Errorf("initializing audit schema: %w", err)
	}
	if version < schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
			return fmt.Errorf("stamping schema version: %w", err)
		}
	}
	return nil
}

// Store implements Storage.
func (s *SQLiteStorage) Store(ctx context.Context, record *Record) error {
	doc, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records
			(trace_id, tenant, decision_type, entity_id,
			 graph_id, revision, content_hash, snapshot_id,
			 outcome_kind, outcome_hash, recorded_at, duration_us, document)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.TraceID, record.Tenant, record.DecisionType, record.EntityID,
		record.BlueprintRef.GraphID, record.BlueprintRef.Revision,
		record.BlueprintRef.ContentHash, record.SnapshotID,
		string(record.Outcome.Kind), record.OutcomeHash,
		record.RecordedAt.UTC(), record.Duration.Microseconds(), doc,
	)
	return err
}

// Get implements Storage.
func (s *SQLiteStorage) Get(ctx context.Context, traceID string) (*Record, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM audit_records WHERE trace_id = ?`, traceID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(doc, &record); err != nil {
		return nil, fmt.Errorf("decoding audit record %s: %w", traceID, err)
	}
	return &record, nil
}

// Query implements Storage.
func (s *SQLiteStorage) Query(ctx context.Context, q *Query) ([]*Record, error) {
	where, args := buildWhere(q)
	sqlQuery := `SELECT document FROM audit_records` + where + ` ORDER BY recorded_at DESC`
	if q.Limit > 0 {
		sqlQuery += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var record Record
		if err := json.Unmarshal(doc, &record); err != nil {
			return nil, fmt.Errorf("decoding audit record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Count implements Storage.
func (s *SQLiteStorage) Count(ctx context.Context, q *Query) (int64, error) {
	where, args := buildWhere(q)
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_records`+where, args...,
	).Scan(&count)
	return count, err
}

// DeleteBefore implements Storage.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_records WHERE recorded_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOverCap implements Storage.
func (s *SQLiteStorage) DeleteOverCap(ctx context.Context, max int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_records WHERE trace_id IN (
			SELECT trace_id FROM audit_records
			ORDER BY recorded_at DESC LIMIT -1 OFFSET ?
		)`, max)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close implements Storage.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func buildWhere(q *Query) (string, []any) {
	var conds []string
	var args []any
	if q.Tenant != "" {
		conds = append(conds, "tenant = ?")
		args = append(args, q.Tenant)
	}
	if q.DecisionType != "" {
		conds = append(conds, "decision_type = ?")
		args = append(args, q.DecisionType)
	}
	if q.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, q.EntityID)
	}
	if q.OutcomeKind != "" {
		conds = append(conds, "outcome_kind = ?")
		args = append(args, q.OutcomeKind)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		conds = append(conds, "recorded_at < ?")
		args = append(args, q.Until.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
