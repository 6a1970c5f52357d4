package engine

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/peoplehub/ecsync/pkg/blob"
	"github.com/peoplehub/ecsync/pkg/store"
)

func seedRun(t *testing.T, st *store.Store, runID string, startedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	run := &store.Run{
		RunID:      runID,
		StartedAt:  startedAt,
		Status:     store.RunStatusSucceeded,
		TotalNew:   2,
		BatchCount: 1,
	}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("Failed to seed run %s: %v", runID, err)
	}
	batches := []store.Batch{
		{RunID: runID, BatchIndex: 0, Size: 2, Members: []string{"ada", "bea"}, Status: store.BatchStatusSucceeded},
	}
	if err := st.InsertBatches(ctx, batches); err != nil {
		t.Fatalf("Failed to seed batches: %v", err)
	}
	outcomes := []store.RecordOutcome{
		{RunID: runID, UserID: "ada", Status: store.OutcomeCreated, Attempts: 1},
		{RunID: runID, UserID: "bea", Status: store.OutcomeCreated, Attempts: 1},
	}
	if err := st.InsertOutcomes(ctx, outcomes); err != nil {
		t.Fatalf("Failed to seed outcomes: %v", err)
	}
}

func TestArchiverWritesRunDocuments(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewStore(filepath.Join(tmpDir, "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	oldStart := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	seedRun(t, st, "run_old", oldStart)
	seedRun(t, st, "run_recent", time.Now().UTC())

	blobs := blob.NewLocalStore(filepath.Join(tmpDir, "archive"))
	archiver := NewArchiver(st, blobs)

	n, err := archiver.Archive(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 archived run, got %d", n)
	}

	keys, err := blobs.List(ctx, "runs")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "runs/2026/05/02/run_old.json.gz" {
		t.Fatalf("Unexpected archive keys: %v", keys)
	}

	reader, err := blobs.Get(ctx, keys[0])
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer reader.Close()
	gz, err := gzip.NewReader(reader)
	if err != nil {
		t.Fatalf("Archive is not gzip: %v", err)
	}
	var doc archivedRun
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode archive document: %v", err)
	}
	if doc.Run == nil || doc.Run.RunID != "run_old" {
		t.Errorf("Archive document has wrong run: %+v", doc.Run)
	}
	if len(doc.Batches) != 1 || len(doc.Batches[0].Members) != 2 {
		t.Errorf("Archive document missing batches: %+v", doc.Batches)
	}
	if len(doc.Outcomes) != 2 {
		t.Errorf("Archive document missing outcomes: %+v", doc.Outcomes)
	}
}

func TestArchiverIdempotentKeys(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewStore(filepath.Join(tmpDir, "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	seedRun(t, st, "run_old", time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC))

	blobs := blob.NewLocalStore(filepath.Join(tmpDir, "archive"))
	archiver := NewArchiver(st, blobs)
	cutoff := time.Now().UTC().AddDate(0, 0, -30)

	for i := 0; i < 2; i++ {
		if _, err := archiver.Archive(ctx, cutoff); err != nil {
			t.Fatalf("Archive pass %d failed: %v", i, err)
		}
	}

	keys, err := blobs.List(ctx, "runs")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Repeated archival must overwrite, not duplicate: %v", keys)
	}
}

func TestMaintainerArchivesBeforePrune(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewStore(filepath.Join(tmpDir, "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	seedRun(t, st, "run_old", time.Now().UTC().AddDate(0, 0, -120))

	archiveDir := filepath.Join(tmpDir, "archive")
	m := NewMaintainer(st, Config{RetainDays: 90, ArchiveDir: archiveDir})
	m.Prune(ctx)

	got, err := st.GetRun(ctx, "run_old")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected run_old pruned, still present")
	}

	keys, err := blob.NewLocalStore(archiveDir).List(ctx, "runs")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Expected the pruned run archived, got %v", keys)
	}
}

func TestMaintainerLeaderGate(t *testing.T) {
	st, err := store.NewStore(filepath.Join(t.TempDir(), "ecsync.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	seedRun(t, st, "run_old", time.Now().UTC().AddDate(0, 0, -120))

	m := NewMaintainer(st, Config{RetainDays: 90})
	m.SetLeaderCheck(func() bool { return false })
	m.Prune(ctx)

	got, err := st.GetRun(ctx, "run_old")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil {
		t.Errorf("Non-leader must not prune")
	}

	m.SetLeaderCheck(func() bool { return true })
	m.Prune(ctx)
	got, err = st.GetRun(ctx, "run_old")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("Leader must prune")
	}
}
