package api

import (
	"github.com/peoplehub/ecsync/pkg/graph"
	"github.com/peoplehub/ecsync/pkg/resolver"
	"github.com/peoplehub/ecsync/pkg/store"
)

// PreviewRequest matches the POST /v1/preview body schema. Source is the
// full roster from the HR extract; TargetIDs are the userids already
// present in the target tenant.
type PreviewRequest struct {
	Source    []PreviewRecord `json:"source"`
	TargetIDs []string        `json:"target_userids"`
}

// PreviewRecord is one personnel record in a preview request.
type PreviewRecord struct {
	UserID        string `json:"userid"`
	Manager       string `json:"manager,omitempty"`
	MatrixManager string `json:"matrix_manager,omitempty"`
	HR            string `json:"hr,omitempty"`
}

// PreviewResponse matches the response for POST /v1/preview.
type PreviewResponse struct {
	Batches         [][]string                   `json:"batches"`
	CycleBatchIndex int                          `json:"cycle_batch_index"`
	CycleGroups     [][]string                   `json:"cycle_groups,omitempty"`
	Cleared         []resolver.ClearedReference  `json:"cleared_references,omitempty"`
	Missing         []resolver.MissingDependency `json:"missing_dependencies,omitempty"`
	Summary         resolver.Summary             `json:"summary"`
	TotalNew        int                          `json:"total_new"`
	TotalExisting   int                          `json:"total_existing"`
}

// PreviewGraphResponse matches the response for POST /v1/preview/graph: the
// roster's reference graph plus the same summary /v1/preview reports.
type PreviewGraphResponse struct {
	Graph   *graph.Graph     `json:"graph"`
	Summary resolver.Summary `json:"summary"`
}

// RunDetailResponse matches the response for GET /v1/runs/{id}.
type RunDetailResponse struct {
	Run           *store.Run                  `json:"run"`
	Batches       []store.Batch               `json:"batches"`
	OutcomeCounts map[store.OutcomeStatus]int `json:"outcome_counts,omitempty"`
}
