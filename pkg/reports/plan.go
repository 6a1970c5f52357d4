package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/peoplehub/ecsync/pkg/store"
)

// PlanReport generates reports describing a run's batch plan: which
// records were grouped into which creation batch, and where the cycle
// batch sits.
type PlanReport struct {
	store ReportStore
}

// NewPlanReport creates a new PlanReport generator.
func NewPlanReport(s ReportStore) *PlanReport {
	return &PlanReport{store: s}
}

type planReportDoc struct {
	RunID   string          `json:"run_id"`
	Status  store.RunStatus `json:"status"`
	Summary json.RawMessage `json:"summary,omitempty"`
	Plan    json.RawMessage `json:"plan,omitempty"`
	Batches []store.Batch   `json:"batches"`
}

// Generate renders the run's batch plan in the requested format.
func (r *PlanReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	run, err := r.store.GetRun(ctx, params.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, params.RunID)
	}

	batches, err := r.store.ListBatches(ctx, params.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	if params.Format == ReportFormatJSON {
		buf := &bytes.Buffer{}
		doc := planReportDoc{
			RunID:   run.RunID,
			Status:  run.Status,
			Summary: run.Summary,
			Plan:    run.Detail,
			Batches: batches,
		}
		if err := json.NewEncoder(buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode plan: %w", err)
		}
		return buf, nil
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"batch_index", "cycle", "batch_status", "userid"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for _, b := range batches {
		for _, member := range b.Members {
			row := []string{
				strconv.Itoa(b.BatchIndex),
				strconv.FormatBool(b.Cycle),
				string(b.Status),
				member,
			}
			if err := writer.Write(row); err != nil {
				return nil, fmt.Errorf("failed to write row: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}

	return buf, nil
}
