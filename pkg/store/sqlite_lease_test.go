package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// backdateLease forces a lease into the past so takeover paths can run
// without sleeping through a real TTL.
func backdateLease(t *testing.T, s *Store, name string) {
	t.Helper()
	_, err := s.db.Exec(`UPDATE leases SET expires_at = ? WHERE name = ?`,
		time.Now().UTC().Add(-time.Minute), name)
	if err != nil {
		t.Fatalf("failed to backdate lease: %v", err)
	}
}

func TestLeaseLifecycle(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	granted, err := s.Acquire(ctx, "sync-run", "runner-a", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !granted {
		t.Fatal("expected a free lease to be granted")
	}

	first, err := s.Get(ctx, "sync-run")
	if err != nil || first == nil {
		t.Fatalf("Get after acquire: lease=%v err=%v", first, err)
	}
	if first.HolderID != "runner-a" {
		t.Fatalf("expected holder runner-a, got %s", first.HolderID)
	}

	// Re-acquiring a lease you hold extends it instead of failing.
	granted, err = s.Acquire(ctx, "sync-run", "runner-a", time.Minute)
	if err != nil || !granted {
		t.Fatalf("expected self re-acquire to extend, granted=%v err=%v", granted, err)
	}
	second, _ := s.Get(ctx, "sync-run")
	if second.Version <= first.Version {
		t.Fatalf("expected version to advance on re-acquire, got %d then %d", first.Version, second.Version)
	}

	// A live lease cannot be taken by another holder.
	granted, err = s.Acquire(ctx, "sync-run", "runner-b", time.Minute)
	if err != nil {
		t.Fatalf("Acquire by second holder: %v", err)
	}
	if granted {
		t.Fatal("second holder was granted a live lease")
	}

	if err := s.Release(ctx, "sync-run", "runner-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if gone, _ := s.Get(ctx, "sync-run"); gone != nil {
		t.Fatalf("expected released lease to be gone, got %+v", gone)
	}

	// Releasing again, or releasing something never held, stays quiet.
	if err := s.Release(ctx, "sync-run", "runner-a"); err != nil {
		t.Fatalf("idempotent Release: %v", err)
	}
}

func TestLeaseExpiredTakeover(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if granted, err := s.Acquire(ctx, "maintenance-leader", "daemon-a", time.Minute); err != nil || !granted {
		t.Fatalf("seed acquire failed: granted=%v err=%v", granted, err)
	}
	backdateLease(t, s, "maintenance-leader")

	granted, err := s.Acquire(ctx, "maintenance-leader", "daemon-b", time.Minute)
	if err != nil {
		t.Fatalf("takeover acquire: %v", err)
	}
	if !granted {
		t.Fatal("expected an expired lease to be taken over")
	}
	l, _ := s.Get(ctx, "maintenance-leader")
	if l.HolderID != "daemon-b" {
		t.Fatalf("expected daemon-b to hold the lease, got %s", l.HolderID)
	}
}

func TestLeaseRenewReportsLoss(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := s.Acquire(ctx, "sync-run", "runner-a", time.Minute); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := s.Renew(ctx, "sync-run", "runner-a", time.Minute); err != nil {
		t.Fatalf("Renew while held: %v", err)
	}

	// Simulate the lease expiring and being claimed by another node.
	backdateLease(t, s, "sync-run")
	if granted, _ := s.Acquire(ctx, "sync-run", "runner-b", time.Minute); !granted {
		t.Fatal("takeover setup failed")
	}

	err := s.Renew(ctx, "sync-run", "runner-a", time.Minute)
	if !errors.Is(err, ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
}

func TestLeaseGetUnheld(t *testing.T) {
	s, _, cleanup := setupTestStore(t)
	defer cleanup()

	l, err := s.Get(context.Background(), "never-claimed")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if l != nil {
		t.Fatalf("expected nil for an unheld lease, got %+v", l)
	}
}
