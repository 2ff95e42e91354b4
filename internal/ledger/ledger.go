// Package ledger records the terminal outcome of every processed item in a
// SQLite database beside the batch artifacts. The checkpoint keeps the run
// resumable; the ledger keeps per-item history queryable, powering the
// rejection breakdown in run summaries and the outcomes CLI command.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by an incompatible
// version of the schema.
var ErrSchemaMismatch = errors.New("ledger schema version mismatch")

const schemaSQL = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    item_id TEXT NOT NULL,
    item_index INTEGER NOT NULL,
    item_name TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    reject_stage TEXT NOT NULL DEFAULT '',
    reject_reason TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    recorded_at TEXT NOT NULL
);

CREATE INDEX idx_outcomes_run ON outcomes(run_id);
CREATE INDEX idx_outcomes_item ON outcomes(item_id);
CREATE INDEX idx_outcomes_status ON outcomes(status);
`

// Outcome is one terminal record.
type Outcome struct {
	RunID        string
	ItemID       string
	ItemIndex    int
	ItemName     string
	Status       string
	RejectStage  string
	RejectReason string
	Attempts     int
	RecordedAt   time.Time
}

// Store persists outcomes in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the ledger database, creating it and its schema when
// absent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create ledger schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read ledger schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Record inserts one outcome row.
func (s *Store) Record(ctx context.Context, outcome Outcome) error {
	recorded := outcome.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (
            run_id, item_id, item_index, item_name,
            status, reject_stage, reject_reason, attempts, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		outcome.ItemID,
		outcome.ItemIndex,
		outcome.ItemName,
		outcome.Status,
		outcome.RejectStage,
		outcome.RejectReason,
		outcome.Attempts,
		recorded.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Recent returns the most recent outcomes, newest first, capped at limit.
// An empty runID returns outcomes across all runs.
func (s *Store) Recent(ctx context.Context, runID string, limit int) ([]Outcome, error) {
	if limit < 1 {
		limit = 50
	}
	query := `SELECT run_id, item_id, item_index, item_name,
            status, reject_stage, reject_reason, attempts, recorded_at
        FROM outcomes`
	args := []any{}
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var recorded string
		if err := rows.Scan(&o.RunID, &o.ItemID, &o.ItemIndex, &o.ItemName,
			&o.Status, &o.RejectStage, &o.RejectReason, &o.Attempts, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, recorded); parseErr == nil {
			o.RecordedAt = ts
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// RejectionBreakdown counts rejections per stage for one run.
func (s *Store) RejectionBreakdown(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reject_stage, COUNT(1) FROM outcomes
        WHERE run_id = ? AND status = 'rejected'
        GROUP BY reject_stage`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rejection breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]int)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan rejection breakdown: %w", err)
		}
		breakdown[stage] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejection breakdown: %w", err)
	}
	return breakdown, nil
}
