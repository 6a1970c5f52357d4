// Package simulation generates synthetic rosters and checks the resolved
// creation order against its structural guarantees. It backs ecsync-sim,
// the pre-rollout smoke tool.
package simulation

import (
	"time"
)

// Scenario describes a synthetic roster: how many records to generate, how
// densely they reference each other, and which pathologies to inject.
type Scenario struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Seed makes generation deterministic. Zero picks the current time.
	Seed int64 `json:"seed"`

	// Employees is the number of acyclic new records to generate.
	Employees int `json:"employees"`
	// Existing is the size of the synthetic target roster.
	Existing int `json:"existing"`

	// ManagerRate, MatrixRate, and HRRate are the probabilities that a
	// generated record carries the corresponding reference.
	ManagerRate float64 `json:"manager_rate"`
	MatrixRate  float64 `json:"matrix_rate"`
	HRRate      float64 `json:"hr_rate"`
	// ExistingRate is the probability that a generated reference points at
	// the existing roster instead of an earlier new record.
	ExistingRate float64 `json:"existing_rate"`

	// Cycles lists reference rings to inject, by size. {2, 3} appends five
	// extra records forming one 2-ring and one 3-ring.
	Cycles []int `json:"cycles,omitempty"`
	// MissingRefs is how many dangling references to inject.
	MissingRefs int `json:"missing_refs"`
}

// InvariantResult is one structural check against the resolved order.
type InvariantResult struct {
	Name     string `json:"name"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// SimulationResult captures one generate-and-resolve pass for reporting.
type SimulationResult struct {
	ScenarioName  string            `json:"scenario_name"`
	Seed          int64             `json:"seed"`
	Duration      time.Duration     `json:"duration"`
	TotalNew      int               `json:"total_new"`
	TotalExisting int               `json:"total_existing"`
	Batches       int               `json:"batches"`
	CycleBatch    int               `json:"cycle_batch_index"`
	Invariants    []InvariantResult `json:"invariants"`
	Success       bool              `json:"success"`
}
