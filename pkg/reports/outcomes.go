package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/peoplehub/ecsync/pkg/store"
)

// OutcomeReport generates per-record reports for a finished run: one row
// for every personnel record the run attempted to create.
type OutcomeReport struct {
	store ReportStore
}

// NewOutcomeReport creates a new OutcomeReport generator.
func NewOutcomeReport(s ReportStore) *OutcomeReport {
	return &OutcomeReport{store: s}
}

type outcomeReportDoc struct {
	RunID    string                `json:"run_id"`
	Status   store.RunStatus       `json:"status"`
	Outcomes []store.RecordOutcome `json:"outcomes"`
}

// Generate renders the run's record outcomes in the requested format.
func (r *OutcomeReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	run, err := r.store.GetRun(ctx, params.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, params.RunID)
	}

	outcomes, err := r.store.ListOutcomes(ctx, params.RunID, params.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}

	if params.Format == ReportFormatJSON {
		buf := &bytes.Buffer{}
		doc := outcomeReportDoc{RunID: run.RunID, Status: run.Status, Outcomes: outcomes}
		if err := json.NewEncoder(buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode outcomes: %w", err)
		}
		return buf, nil
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	headers := []string{"userid", "batch_index", "status", "message", "cleared_fields", "attempts"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}

	for _, o := range outcomes {
		// Cleared fields are semicolon-joined so the cell stays a single
		// CSV column.
		row := []string{
			o.UserID,
			strconv.Itoa(o.BatchIndex),
			string(o.Status),
			o.Message,
			strings.Join(o.ClearedFields, ";"),
			strconv.Itoa(o.Attempts),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}

	return buf, nil
}
