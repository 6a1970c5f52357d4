package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrLeaseLost reports that a renewal found the lease no longer held by the
// caller. The holder must stop acting on the leased role.
var ErrLeaseLost = errors.New("lease lost")

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// BatchStatus is the lifecycle state of one creation batch within a run.
type BatchStatus string

const (
	BatchStatusPlanned   BatchStatus = "planned"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusSucceeded BatchStatus = "succeeded"
	BatchStatusFailed    BatchStatus = "failed"
)

// OutcomeStatus is the terminal state of one record's creation attempt.
type OutcomeStatus string

const (
	OutcomeCreated OutcomeStatus = "created"
	OutcomeWarning OutcomeStatus = "warning"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Run is the header row of one sync run. Summary holds the resolver's
// diagnostic summary verbatim; Detail holds the supplementary plan data
// (cycle groups, cleared references). Both are stored as opaque JSON so the
// run history schema does not chase the resolver's types.
type Run struct {
	RunID         string          `json:"run_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Status        RunStatus       `json:"status"`
	DryRun        bool            `json:"dry_run"`
	TotalNew      int             `json:"total_new"`
	TotalExisting int             `json:"total_existing"`
	BatchCount    int             `json:"batch_count"`
	Error         string          `json:"error,omitempty"`
	Summary       json.RawMessage `json:"summary,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
}

// Batch is one creation batch of a run. Members lists the userids in batch
// order; Cycle marks the terminal batch produced by cycle resolution.
type Batch struct {
	RunID      string      `json:"run_id"`
	BatchIndex int         `json:"batch_index"`
	Size       int         `json:"size"`
	Cycle      bool        `json:"cycle"`
	Members    []string    `json:"members"`
	Status     BatchStatus `json:"status"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// RecordOutcome is the per-record result of a creation attempt.
type RecordOutcome struct {
	RunID         string        `json:"run_id"`
	UserID        string        `json:"userid"`
	BatchIndex    int           `json:"batch_index"`
	Status        OutcomeStatus `json:"status"`
	Message       string        `json:"message,omitempty"`
	ClearedFields []string      `json:"cleared_fields,omitempty"`
	Attempts      int           `json:"attempts"`
}

// Lease represents a mutual-exclusion claim, used to enforce a single
// concurrent sync run per store.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // bumped on every grant; renewals compare it
}

// LeaseStore defines the interface for acquiring and renewing leases. Both
// the SQLite and Redis stores satisfy it.
type LeaseStore interface {
	// Acquire claims the lease for holderID, reporting whether the claim
	// was granted. A holder re-acquiring its own live lease extends it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew extends a lease holderID already holds. Returns ErrLeaseLost
	// if the lease no longer names holderID.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release drops the lease when holderID holds it, and is a no-op
	// otherwise.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state.
	Get(ctx context.Context, name string) (*Lease, error)
}
