// Package store persists sync run history: run headers, per-batch state,
// per-record outcomes, and the lease rows that keep concurrent runs from
// stepping on each other.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite handle behind the run-history operations.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the run-history database at dbPath
// and brings its schema up to date.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	// WAL lets the API read run history while a sync run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Cascading deletes from sync_runs rely on this.
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema. Every statement is idempotent, so running it
// against an existing database is safe.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		total_new INTEGER NOT NULL DEFAULT 0,
		total_existing INTEGER NOT NULL DEFAULT 0,
		batch_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,

		-- Resolver outputs, stored verbatim
		summary JSON,
		detail JSON
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);

	CREATE TABLE IF NOT EXISTS sync_batches (
		run_id TEXT NOT NULL REFERENCES sync_runs(run_id) ON DELETE CASCADE,
		batch_index INTEGER NOT NULL,
		size INTEGER NOT NULL,
		is_cycle INTEGER NOT NULL DEFAULT 0,
		members JSON NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME,
		finished_at DATETIME,
		PRIMARY KEY (run_id, batch_index)
	);

	CREATE TABLE IF NOT EXISTS record_outcomes (
		run_id TEXT NOT NULL REFERENCES sync_runs(run_id) ON DELETE CASCADE,
		userid TEXT NOT NULL,
		batch_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		cleared_fields JSON,
		attempts INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, userid)
	);

	CREATE INDEX IF NOT EXISTS idx_record_outcomes_status ON record_outcomes(run_id, status);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create run history tables: %w", err)
	}

	return nil
}
