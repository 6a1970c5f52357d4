package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/peoplehub/ecsync/pkg/store"
)

func TestMaintainerPrunesOldRuns(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	old := &store.Run{
		RunID:     "run_old",
		StartedAt: time.Now().UTC().AddDate(0, 0, -120),
		Status:    store.RunStatusSucceeded,
	}
	recent := &store.Run{
		RunID:     "run_recent",
		StartedAt: time.Now().UTC(),
		Status:    store.RunStatusSucceeded,
	}
	if err := st.CreateRun(ctx, old); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if err := st.CreateRun(ctx, recent); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	m := NewMaintainer(st, Config{RetainDays: 90})
	m.Prune(ctx)

	got, err := st.GetRun(ctx, "run_old")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Error("Expected old run to be pruned")
	}

	got, err = st.GetRun(ctx, "run_recent")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Error("Expected recent run to survive")
	}
}

func TestMaintainerDisabled(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := NewMaintainer(st, Config{RetainDays: -1})

	done := make(chan struct{})
	go func() {
		// Must return immediately without a ticker.
		m.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected disabled maintainer to return immediately")
	}
}

func TestMaintainerRunStopsOnCancel(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := NewMaintainer(st, Config{RetainDays: 90})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected maintainer to stop on cancel")
	}
}
