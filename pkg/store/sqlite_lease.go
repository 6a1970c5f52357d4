package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Lease methods implement LeaseStore on the SQLite store. Every claim is a
// single atomic statement; the version column counts handovers and renewals
// so operators can see churn in the table.

// Acquire claims name for holderID. One upsert covers every case: a free
// name inserts, a lease this holder already owns or an expired one is taken
// over, and anything else leaves the row untouched so the grant is denied.
func (s *Store) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leases (name, holder_id, expires_at, version)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(name) DO UPDATE SET
			holder_id = excluded.holder_id,
			expires_at = excluded.expires_at,
			version = leases.version + 1
		WHERE leases.holder_id = excluded.holder_id OR leases.expires_at < ?
	`, name, holderID, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("failed to claim lease %s: %w", name, err)
	}

	granted, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease claim result: %w", err)
	}
	return granted > 0, nil
}

// Renew extends the expiry of a lease this holder owns. ErrLeaseLost means
// the row no longer names holderID; the caller must stop acting as holder.
func (s *Store) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leases
		SET expires_at = ?, version = version + 1
		WHERE name = ? AND holder_id = ?
	`, time.Now().UTC().Add(ttl), name, holderID)
	if err != nil {
		return fmt.Errorf("failed to renew lease %s: %w", name, err)
	}

	kept, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read lease renew result: %w", err)
	}
	if kept == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release drops the lease row while holderID still owns it. Releasing a
// lease someone else took over is a no-op, not an error.
func (s *Store) Release(ctx context.Context, name, holderID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM leases WHERE name = ? AND holder_id = ?`, name, holderID)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Get reads the current lease row; nil means nobody holds name.
func (s *Store) Get(ctx context.Context, name string) (*Lease, error) {
	var l Lease
	row := s.db.QueryRowContext(ctx,
		`SELECT name, holder_id, expires_at, version FROM leases WHERE name = ?`, name)
	if err := row.Scan(&l.Name, &l.HolderID, &l.ExpiresAt, &l.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load lease %s: %w", name, err)
	}
	return &l, nil
}
