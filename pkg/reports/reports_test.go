package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/peoplehub/ecsync/pkg/store"
)

type mockReportStore struct {
	run      *store.Run
	batches  []store.Batch
	outcomes []store.RecordOutcome
}

func (m *mockReportStore) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	if m.run == nil || m.run.RunID != runID {
		return nil, nil
	}
	return m.run, nil
}

func (m *mockReportStore) ListBatches(ctx context.Context, runID string) ([]store.Batch, error) {
	return m.batches, nil
}

func (m *mockReportStore) ListOutcomes(ctx context.Context, runID string, status store.OutcomeStatus) ([]store.RecordOutcome, error) {
	if status == "" {
		return m.outcomes, nil
	}
	var results []store.RecordOutcome
	for _, o := range m.outcomes {
		if o.Status == status {
			results = append(results, o)
		}
	}
	return results, nil
}

func seededStore() *mockReportStore {
	now := time.Now()
	return &mockReportStore{
		run: &store.Run{
			RunID:      "run_1",
			StartedAt:  now,
			FinishedAt: &now,
			Status:     store.RunStatusSucceeded,
			TotalNew:   3,
			BatchCount: 2,
			Summary:    json.RawMessage(`{"total_new_employees":3}`),
			Detail:     json.RawMessage(`{"batches":[["alice"],["bob","carol"]],"cycle_batch_index":1}`),
		},
		batches: []store.Batch{
			{RunID: "run_1", BatchIndex: 0, Size: 1, Members: []string{"alice"}, Status: store.BatchStatusSucceeded},
			{RunID: "run_1", BatchIndex: 1, Size: 2, Cycle: true, Members: []string{"bob", "carol"}, Status: store.BatchStatusSucceeded},
		},
		outcomes: []store.RecordOutcome{
			{RunID: "run_1", UserID: "alice", BatchIndex: 0, Status: store.OutcomeCreated, Attempts: 1},
			{RunID: "run_1", UserID: "bob", BatchIndex: 1, Status: store.OutcomeCreated, ClearedFields: []string{"manager", "hr"}, Attempts: 1},
			{RunID: "run_1", UserID: "carol", BatchIndex: 1, Status: store.OutcomeFailed, Message: "duplicate userid", Attempts: 2},
		},
	}
}

func TestOutcomeReportCSV(t *testing.T) {
	r := NewOutcomeReport(seededStore())

	reader, err := r.Generate(context.Background(), ReportParams{RunID: "run_1", Format: ReportFormatCSV})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}

	if len(records) != 4 { // Header + 3 rows
		t.Fatalf("Expected 4 records, got %d", len(records))
	}
	if records[0][0] != "userid" {
		t.Errorf("Expected userid header, got %s", records[0][0])
	}
	if records[1][0] != "alice" {
		t.Errorf("Expected alice in first row, got %s", records[1][0])
	}
	if records[2][4] != "manager;hr" {
		t.Errorf("Expected joined cleared fields, got %s", records[2][4])
	}
	if records[3][2] != "failed" {
		t.Errorf("Expected failed status for carol, got %s", records[3][2])
	}
}

func TestOutcomeReportStatusFilter(t *testing.T) {
	r := NewOutcomeReport(seededStore())

	reader, err := r.Generate(context.Background(), ReportParams{
		RunID:  "run_1",
		Format: ReportFormatCSV,
		Status: store.OutcomeFailed,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[1][0] != "carol" {
		t.Errorf("Expected carol, got %s", records[1][0])
	}
}

func TestOutcomeReportJSON(t *testing.T) {
	r := NewOutcomeReport(seededStore())

	reader, err := r.Generate(context.Background(), ReportParams{RunID: "run_1", Format: ReportFormatJSON})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var doc outcomeReportDoc
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if doc.RunID != "run_1" {
		t.Errorf("Expected run_1, got %s", doc.RunID)
	}
	if len(doc.Outcomes) != 3 {
		t.Errorf("Expected 3 outcomes, got %d", len(doc.Outcomes))
	}
}

func TestOutcomeReportUnknownRun(t *testing.T) {
	r := NewOutcomeReport(seededStore())

	_, err := r.Generate(context.Background(), ReportParams{RunID: "run_missing", Format: ReportFormatCSV})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestPlanReportCSV(t *testing.T) {
	r := NewPlanReport(seededStore())

	reader, err := r.Generate(context.Background(), ReportParams{RunID: "run_1", Format: ReportFormatCSV})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}

	if len(records) != 4 { // Header + 1 member + 2 members
		t.Fatalf("Expected 4 records, got %d", len(records))
	}
	if records[1][1] != "false" {
		t.Errorf("Expected non-cycle first batch, got %s", records[1][1])
	}
	if records[2][1] != "true" || records[2][3] != "bob" {
		t.Errorf("Expected cycle row for bob, got %v", records[2])
	}
}

func TestPlanReportJSON(t *testing.T) {
	r := NewPlanReport(seededStore())

	reader, err := r.Generate(context.Background(), ReportParams{RunID: "run_1", Format: ReportFormatJSON})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var doc planReportDoc
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if len(doc.Batches) != 2 {
		t.Errorf("Expected 2 batches, got %d", len(doc.Batches))
	}
	var plan struct {
		CycleBatchIndex int `json:"cycle_batch_index"`
	}
	if err := json.Unmarshal(doc.Plan, &plan); err != nil {
		t.Fatalf("Failed to decode plan detail: %v", err)
	}
	if plan.CycleBatchIndex != 1 {
		t.Errorf("Expected cycle batch index 1, got %d", plan.CycleBatchIndex)
	}
}

func TestReportFactory(t *testing.T) {
	s := seededStore()

	gen, err := NewGenerator(ReportTypeOutcomes, s)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	if _, ok := gen.(*OutcomeReport); !ok {
		t.Errorf("Expected *OutcomeReport, got %T", gen)
	}

	gen, err = NewGenerator(ReportTypePlan, s)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	if _, ok := gen.(*PlanReport); !ok {
		t.Errorf("Expected *PlanReport, got %T", gen)
	}

	if _, err := NewGenerator(ReportType("bogus"), s); err == nil {
		t.Error("Expected error for unknown report type")
	}
}
