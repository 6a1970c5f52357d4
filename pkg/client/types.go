package client

import (
	"encoding/json"
	"time"
)

// Run mirrors one run row from the daemon's history.
type Run struct {
	RunID         string          `json:"run_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Status        string          `json:"status"`
	DryRun        bool            `json:"dry_run"`
	TotalNew      int             `json:"total_new"`
	TotalExisting int             `json:"total_existing"`
	BatchCount    int             `json:"batch_count"`
	Error         string          `json:"error,omitempty"`
	Summary       json.RawMessage `json:"summary,omitempty"`
	Detail        json.RawMessage `json:"detail,omitempty"`
}

// Batch is one creation batch of a run.
type Batch struct {
	RunID      string     `json:"run_id"`
	BatchIndex int        `json:"batch_index"`
	Size       int        `json:"size"`
	Cycle      bool       `json:"cycle"`
	Members    []string   `json:"members"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RecordOutcome is the per-record result of a creation attempt.
type RecordOutcome struct {
	RunID         string   `json:"run_id"`
	UserID        string   `json:"userid"`
	BatchIndex    int      `json:"batch_index"`
	Status        string   `json:"status"`
	Message       string   `json:"message,omitempty"`
	ClearedFields []string `json:"cleared_fields,omitempty"`
	Attempts      int      `json:"attempts"`
}

// RunDetail is the full view of one run.
type RunDetail struct {
	Run           *Run           `json:"run"`
	Batches       []Batch        `json:"batches"`
	OutcomeCounts map[string]int `json:"outcome_counts,omitempty"`
}

// MissingDependency is a reference that matched neither the new set nor
// the existing roster.
type MissingDependency struct {
	UserID  string `json:"userid"`
	Field   string `json:"field"`
	Missing string `json:"missing_dependency"`
}

// ClearedReference is a relationship removed to break a cycle.
type ClearedReference struct {
	UserID string `json:"userid"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

// Summary is the resolver's diagnostic summary.
type Summary struct {
	TotalNewEmployees           int                 `json:"total_new_employees"`
	EmployeesWithNoDependencies int                 `json:"employees_with_no_dependencies"`
	EmployeesWithDependencies   int                 `json:"employees_with_dependencies"`
	EmployeesInCycles           int                 `json:"employees_in_cycles"`
	CycleUserIDs                []string            `json:"cycle_userids"`
	MissingDependencies         []MissingDependency `json:"missing_dependencies"`
	MissingDependencyCount      int                 `json:"missing_dependency_count"`
}

// Record is one personnel record in a preview request.
type Record struct {
	UserID        string `json:"userid"`
	Manager       string `json:"manager,omitempty"`
	MatrixManager string `json:"matrix_manager,omitempty"`
	HR            string `json:"hr,omitempty"`
}

// PreviewRequest is the POST /v1/preview body.
type PreviewRequest struct {
	Source    []Record `json:"source"`
	TargetIDs []string `json:"target_userids"`
}

// Preview is the result of a dry resolution: the creation plan the daemon
// would execute, without anything persisted.
type Preview struct {
	Batches         [][]string          `json:"batches"`
	CycleBatchIndex int                 `json:"cycle_batch_index"`
	CycleGroups     [][]string          `json:"cycle_groups,omitempty"`
	Cleared         []ClearedReference  `json:"cleared_references,omitempty"`
	Missing         []MissingDependency `json:"missing_dependencies,omitempty"`
	Summary         Summary             `json:"summary"`
	TotalNew        int                 `json:"total_new"`
	TotalExisting   int                 `json:"total_existing"`
}

// GraphNode is one vertex in a roster's reference graph: an employee to
// create, an existing target employee, or a missing reference.
type GraphNode struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties,omitempty"`
}

// GraphEdge is one populated dependency field between two nodes.
type GraphEdge struct {
	FromID  string `json:"from_id"`
	ToID    string `json:"to_id"`
	Type    string `json:"type"`
	Cleared bool   `json:"cleared,omitempty"`
}

// Graph is the reference graph projected from a preview roster.
type Graph struct {
	Nodes map[string]*GraphNode `json:"nodes"`
	Edges []*GraphEdge          `json:"edges"`
}

// PreviewGraph is the result of POST /v1/preview/graph.
type PreviewGraph struct {
	Graph   *Graph  `json:"graph"`
	Summary Summary `json:"summary"`
}

// Status is the ping endpoint's answer.
type Status struct {
	// "ok" when the daemon is serving.
	Status string `json:"status"`
}
