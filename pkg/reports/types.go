package reports

import (
	"context"
	"errors"
	"io"

	"github.com/peoplehub/ecsync/pkg/store"
)

// ErrRunNotFound is returned when a report is requested for a run ID
// the store has no row for.
var ErrRunNotFound = errors.New("run not found")

type ReportType string

const (
	ReportTypeOutcomes ReportType = "outcomes"
	ReportTypePlan     ReportType = "plan"
)

type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatJSON ReportFormat = "json"
)

type ReportParams struct {
	RunID  string
	Format ReportFormat
	// Status narrows the outcomes report to one outcome status. Empty
	// means all statuses.
	Status store.OutcomeStatus
}

// ReportStore is the slice of the run store that report generation reads.
type ReportStore interface {
	GetRun(ctx context.Context, runID string) (*store.Run, error)
	ListBatches(ctx context.Context, runID string) ([]store.Batch, error)
	ListOutcomes(ctx context.Context, runID string, status store.OutcomeStatus) ([]store.RecordOutcome, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
