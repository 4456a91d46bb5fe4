package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"praetor-hq/tribune/pkg/blueprint"
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS blueprints (
	graph_id      TEXT    NOT NULL,
	revision      INTEGER NOT NULL,
	content_hash  TEXT    NOT NULL,
	tenant        TEXT    NOT NULL,
	decision_type TEXT    NOT NULL,
	compiled_at   TIMESTAMP NOT NULL,
	document      BLOB    NOT NULL,
	PRIMARY KEY (graph_id, revision, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_blueprints_tenant
	ON blueprints(tenant, decision_type, revision DESC);

CREATE TABLE IF NOT EXISTS activations (
	tenant        TEXT NOT NULL,
	decision_type TEXT NOT NULL,
	graph_id      TEXT NOT NULL,
	revision      INTEGER NOT NULL,
	content_hash  TEXT NOT NULL,
	activated_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant, decision_type)
);
`

// SQLiteStore persists blueprints and activations in a SQLite database
// (pure-Go driver). Blueprints are stored as their canonical JSON document;
// the semantic identity is the content hash, not the bytes.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig configures the registry store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (creating if needed) the registry database.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("registry db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}

	// Single writer; the control plane is low-traffic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(registrySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing registry schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveBlueprint implements Store.
func (s *SQLiteStore) SaveBlueprint(ctx context.Context, bp *blueprint.Blueprint) error {
	doc, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("encoding blueprint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO blueprints
			(graph_id, revision, content_hash, tenant, decision_type, compiled_at, document)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bp.Ref.GraphID, bp.Ref.Revision, bp.Ref.ContentHash,
		bp.Tenant, bp.DecisionType, bp.CompiledAt.UTC(), doc,
	)
	return err
}

// GetBlueprint implements Store.
func (s *SQLiteStore) GetBlueprint(ctx context.Context, ref blueprint.Ref) (*blueprint.Blueprint, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM blueprints
		WHERE graph_id = ? AND revision = ? AND content_hash = ?`,
		ref.GraphID, ref.Revision, ref.ContentHash,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var bp blueprint.Blueprint
	if err := json.Unmarshal(doc, &bp); err != nil {
		return nil, fmt.Errorf("decoding blueprint %s: %w", ref, err)
	}
	return &bp, nil
}

// ListBlueprints implements Store.
func (s *SQLiteStore) ListBlueprints(ctx context.Context, tenant string) ([]blueprint.Ref, error) {
	query := `SELECT graph_id, revision, content_hash FROM blueprints`
	args := []any{}
	if tenant != "" {
		query += ` WHERE tenant = ?`
		args = append(args, tenant)
	}
	query += ` ORDER BY graph_id, revision DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []blueprint.Ref
	for rows.Next() {
		var ref blueprint.Ref
		if err := rows.Scan(&ref.GraphID, &ref.Revision, &ref.ContentHash); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SaveActivation implements Store.
func (s *SQLiteStore) SaveActivation(ctx context.Context, act *Activation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO activations
			(tenant, decision_type, graph_id, revision, content_hash, activated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		act.Tenant, act.DecisionType,
		act.Ref.GraphID, act.Ref.Revision, act.Ref.ContentHash,
		time.Now().UTC(),
	)
	return err
}

// ListActivations implements Store.
func (s *SQLiteStore) ListActivations(ctx context.Context) ([]*Activation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant, decision_type, graph_id, revision, content_hash
		FROM activations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Activation
	for rows.Next() {
		act := &Activation{}
		if err := rows.Scan(&act.Tenant, &act.DecisionType,
			&act.Ref.GraphID, &act.Ref.Revision, &act.Ref.ContentHash); err != nil {
			return nil, err
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
