package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestRunLifecycle(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := &Run{
		RunID:         "run_1",
		StartedAt:     time.Now().UTC(),
		Status:        RunStatusRunning,
		TotalNew:      3,
		TotalExisting: 5,
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil || got.Status != RunStatusRunning || got.TotalNew != 3 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.FinishedAt != nil {
		t.Errorf("expected nil FinishedAt on running run")
	}

	summary := json.RawMessage(`{"total_new_employees":3}`)
	detail := json.RawMessage(`{"cycle_groups":[]}`)
	if err := store.SetRunPlan(ctx, "run_1", 2, summary, detail); err != nil {
		t.Fatalf("SetRunPlan failed: %v", err)
	}

	if err := store.FinishRun(ctx, "run_1", RunStatusSucceeded, ""); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err = store.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != RunStatusSucceeded || got.BatchCount != 2 {
		t.Fatalf("unexpected run after finish: %+v", got)
	}
	if got.FinishedAt == nil {
		t.Errorf("expected FinishedAt to be set")
	}
	if string(got.Summary) != string(summary) {
		t.Errorf("summary = %s, want %s", got.Summary, summary)
	}
}

func TestGetRunMissing(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	got, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing run, got %+v", got)
	}
}

func TestFinishRunMissing(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.FinishRun(context.Background(), "nope", RunStatusFailed, "boom"); err == nil {
		t.Errorf("expected error finishing missing run")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Now().UTC().Add(-1 * time.Hour)
	for i := 0; i < 5; i++ {
		run := &Run{
			RunID:     fmt.Sprintf("run_%d", i),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			Status:    RunStatusSucceeded,
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 3)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run_4" || runs[2].RunID != "run_2" {
		t.Errorf("unexpected order: %s, %s, %s", runs[0].RunID, runs[1].RunID, runs[2].RunID)
	}
}

func TestBatchLifecycle(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := &Run{RunID: "run_b", StartedAt: time.Now().UTC(), Status: RunStatusRunning}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	batches := []Batch{
		{RunID: "run_b", BatchIndex: 0, Size: 2, Members: []string{"a", "b"}, Status: BatchStatusPlanned},
		{RunID: "run_b", BatchIndex: 1, Size: 1, Cycle: true, Members: []string{"c"}, Status: BatchStatusPlanned},
	}
	if err := store.InsertBatches(ctx, batches); err != nil {
		t.Fatalf("InsertBatches failed: %v", err)
	}

	if err := store.MarkBatchStarted(ctx, "run_b", 0); err != nil {
		t.Fatalf("MarkBatchStarted failed: %v", err)
	}
	if err := store.MarkBatchFinished(ctx, "run_b", 0, BatchStatusSucceeded); err != nil {
		t.Fatalf("MarkBatchFinished failed: %v", err)
	}

	got, err := store.ListBatches(ctx, "run_b")
	if err != nil {
		t.Fatalf("ListBatches failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(got))
	}
	if got[0].Status != BatchStatusSucceeded || got[0].StartedAt == nil || got[0].FinishedAt == nil {
		t.Errorf("unexpected batch 0: %+v", got[0])
	}
	if len(got[0].Members) != 2 || got[0].Members[0] != "a" {
		t.Errorf("unexpected members: %v", got[0].Members)
	}
	if !got[1].Cycle || got[1].Status != BatchStatusPlanned {
		t.Errorf("unexpected batch 1: %+v", got[1])
	}
}

func TestOutcomes(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	run := &Run{RunID: "run_o", StartedAt: time.Now().UTC(), Status: RunStatusRunning}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	outcomes := []RecordOutcome{
		{RunID: "run_o", UserID: "a", BatchIndex: 0, Status: OutcomeCreated, Attempts: 1},
		{RunID: "run_o", UserID: "b", BatchIndex: 0, Status: OutcomeFailed, Message: "upstream 500", Attempts: 3},
		{RunID: "run_o", UserID: "c", BatchIndex: 1, Status: OutcomeCreated, ClearedFields: []string{"manager"}, Attempts: 1},
	}
	if err := store.InsertOutcomes(ctx, outcomes); err != nil {
		t.Fatalf("InsertOutcomes failed: %v", err)
	}

	all, err := store.ListOutcomes(ctx, "run_o", "")
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(all))
	}
	if all[2].UserID != "c" || len(all[2].ClearedFields) != 1 {
		t.Errorf("unexpected outcome: %+v", all[2])
	}

	failed, err := store.ListOutcomes(ctx, "run_o", OutcomeFailed)
	if err != nil {
		t.Fatalf("ListOutcomes(failed) failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Message != "upstream 500" {
		t.Errorf("unexpected failed outcomes: %+v", failed)
	}

	counts, err := store.CountOutcomes(ctx, "run_o")
	if err != nil {
		t.Fatalf("CountOutcomes failed: %v", err)
	}
	if counts[OutcomeCreated] != 2 || counts[OutcomeFailed] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestPruneRunsCascades(t *testing.T) {
	store, _, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	old := &Run{RunID: "run_old", StartedAt: time.Now().UTC().Add(-48 * time.Hour), Status: RunStatusSucceeded}
	recent := &Run{RunID: "run_new", StartedAt: time.Now().UTC(), Status: RunStatusSucceeded}
	for _, r := range []*Run{old, recent} {
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}
	if err := store.InsertBatches(ctx, []Batch{
		{RunID: "run_old", BatchIndex: 0, Size: 1, Members: []string{"a"}, Status: BatchStatusSucceeded},
	}); err != nil {
		t.Fatalf("InsertBatches failed: %v", err)
	}
	if err := store.InsertOutcomes(ctx, []RecordOutcome{
		{RunID: "run_old", UserID: "a", Status: OutcomeCreated, Attempts: 1},
	}); err != nil {
		t.Fatalf("InsertOutcomes failed: %v", err)
	}

	n, err := store.PruneRuns(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned run, got %d", n)
	}

	if got, _ := store.GetRun(ctx, "run_old"); got != nil {
		t.Errorf("expected run_old gone, got %+v", got)
	}
	if got, _ := store.GetRun(ctx, "run_new"); got == nil {
		t.Errorf("expected run_new kept")
	}

	batches, err := store.ListBatches(ctx, "run_old")
	if err != nil {
		t.Fatalf("ListBatches failed: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("expected cascaded batch delete, got %d rows", len(batches))
	}
	outcomes, err := store.ListOutcomes(ctx, "run_old", "")
	if err != nil {
		t.Fatalf("ListOutcomes failed: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("expected cascaded outcome delete, got %d rows", len(outcomes))
	}
}
