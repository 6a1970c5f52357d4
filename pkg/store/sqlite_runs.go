package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// CreateRun inserts the header row for a newly started run.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, started_at, status, dry_run, total_new, total_existing, batch_count, summary, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, r.StartedAt.UTC(), string(r.Status), r.DryRun, r.TotalNew, r.TotalExisting,
		r.BatchCount, nullJSON(r.Summary), nullJSON(r.Detail))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// SetRunPlan attaches the resolver's outputs to a run once planning is done.
func (s *Store) SetRunPlan(ctx context.Context, runID string, batchCount int, summary, detail json.RawMessage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET batch_count = ?, summary = ?, detail = ? WHERE run_id = ?
	`, batchCount, nullJSON(summary), nullJSON(detail), runID)
	if err != nil {
		return fmt.Errorf("failed to update run plan: %w", err)
	}
	return requireRow(res, runID)
}

// FinishRun marks a run terminal. errMsg is stored only for failed runs.
func (s *Store) FinishRun(ctx context.Context, runID string, status RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET finished_at = ?, status = ?, error = ? WHERE run_id = ?
	`, time.Now().UTC(), string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireRow(res, runID)
}

func requireRow(res sql.Result, runID string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, status, dry_run, total_new, total_existing, batch_count, error, summary, detail`

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	var errMsg, summary, detail sql.NullString
	err := row.Scan(&r.RunID, &r.StartedAt, &finished, &r.Status, &r.DryRun,
		&r.TotalNew, &r.TotalExisting, &r.BatchCount, &errMsg, &summary, &detail)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	r.Error = errMsg.String
	if summary.Valid {
		r.Summary = json.RawMessage(summary.String)
	}
	if detail.Valid {
		r.Detail = json.RawMessage(detail.String)
	}
	return &r, nil
}

// GetRun returns the run header, or nil if no such run exists.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sync_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC, run_id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertBatches stores a run's planned batches in one transaction.
func (s *Store) InsertBatches(ctx context.Context, batches []Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sync_batches (run_id, batch_index, size, is_cycle, members, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range batches {
		members, err := json.Marshal(b.Members)
		if err != nil {
			return fmt.Errorf("failed to marshal batch members: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, b.RunID, b.BatchIndex, b.Size, b.Cycle, string(members), string(b.Status)); err != nil {
			return fmt.Errorf("failed to insert batch %d: %w", b.BatchIndex, err)
		}
	}
	return tx.Commit()
}

// MarkBatchStarted flips a planned batch to running.
func (s *Store) MarkBatchStarted(ctx context.Context, runID string, batchIndex int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_batches SET status = ?, started_at = ? WHERE run_id = ? AND batch_index = ?
	`, string(BatchStatusRunning), time.Now().UTC(), runID, batchIndex)
	if err != nil {
		return fmt.Errorf("failed to mark batch started: %w", err)
	}
	return nil
}

// MarkBatchFinished records a batch's terminal status.
func (s *Store) MarkBatchFinished(ctx context.Context, runID string, batchIndex int, status BatchStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_batches SET status = ?, finished_at = ? WHERE run_id = ? AND batch_index = ?
	`, string(status), time.Now().UTC(), runID, batchIndex)
	if err != nil {
		return fmt.Errorf("failed to mark batch finished: %w", err)
	}
	return nil
}

// ListBatches returns a run's batches ordered by index.
func (s *Store) ListBatches(ctx context.Context, runID string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, batch_index, size, is_cycle, members, status, started_at, finished_at
		FROM sync_batches WHERE run_id = ? ORDER BY batch_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var members string
		var started, finished sql.NullTime
		if err := rows.Scan(&b.RunID, &b.BatchIndex, &b.Size, &b.Cycle, &members, &b.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if err := json.Unmarshal([]byte(members), &b.Members); err != nil {
			return nil, fmt.Errorf("failed to unmarshal batch members: %w", err)
		}
		if started.Valid {
			t := started.Time
			b.StartedAt = &t
		}
		if finished.Valid {
			t := finished.Time
			b.FinishedAt = &t
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// InsertOutcomes stores per-record results in one transaction.
func (s *Store) InsertOutcomes(ctx context.Context, outcomes []RecordOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO record_outcomes (run_id, userid, batch_index, status, message, cleared_fields, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		var cleared any
		if len(o.ClearedFields) > 0 {
			raw, err := json.Marshal(o.ClearedFields)
			if err != nil {
				return fmt.Errorf("failed to marshal cleared fields: %w", err)
			}
			cleared = string(raw)
		}
		if _, err := stmt.ExecContext(ctx, o.RunID, o.UserID, o.BatchIndex, string(o.Status), o.Message, cleared, o.Attempts); err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", o.UserID, err)
		}
	}
	return tx.Commit()
}

// ListOutcomes returns a run's per-record results, filtered by status when
// status is non-empty. Ordered by batch then userid.
func (s *Store) ListOutcomes(ctx context.Context, runID string, status OutcomeStatus) ([]RecordOutcome, error) {
	query := `
		SELECT run_id, userid, batch_index, status, message, cleared_fields, attempts
		FROM record_outcomes WHERE run_id = ?`
	args := []any{runID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY batch_index, userid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []RecordOutcome
	for rows.Next() {
		var o RecordOutcome
		var message, cleared sql.NullString
		if err := rows.Scan(&o.RunID, &o.UserID, &o.BatchIndex, &o.Status, &message, &cleared, &o.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Message = message.String
		if cleared.Valid {
			if err := json.Unmarshal([]byte(cleared.String), &o.ClearedFields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal cleared fields: %w", err)
			}
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// CountOutcomes returns the per-status outcome counts for a run.
func (s *Store) CountOutcomes(ctx context.Context, runID string) (map[OutcomeStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM record_outcomes WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[OutcomeStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[OutcomeStatus(status)] = n
	}
	return counts, rows.Err()
}

// ListRunsBefore returns runs started before the cutoff, oldest first. It
// feeds archival ahead of pruning and uses the same started_at comparison
// as PruneRuns.
func (s *Store) ListRunsBefore(ctx context.Context, cutoff time.Time) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM sync_runs WHERE started_at < ? ORDER BY started_at, run_id
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list runs before cutoff: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes runs started before the cutoff. Batches and outcomes go
// with them via cascading deletes. Returns the number of runs removed.
func (s *Store) PruneRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sync_runs WHERE started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n, nil
}
