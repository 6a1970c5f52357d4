// Package ec talks to the Employee Central OData surface: OAuth assertion
// tokens, chunked record upserts with per-record result parsing, and a
// configurable mock for tests and dry runs.
package ec

import (
	"context"

	"github.com/peoplehub/ecsync/pkg/employee"
)

// Status is the per-record result category of an upsert.
type Status string

const (
	StatusCreated Status = "created"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
)

// Result is one record's outcome from a Create call. Attempts counts how
// many times the record's chunk was sent.
type Result struct {
	UserID   string `json:"userid"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Key      string `json:"key,omitempty"`
	HTTPCode int    `json:"http_code,omitempty"`
	Attempts int    `json:"attempts"`
}

// Creator creates personnel records in the target system. Implementations
// must return one Result per input record, in input order.
type Creator interface {
	Create(ctx context.Context, records []employee.Record) ([]Result, error)
}
