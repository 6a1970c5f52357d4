// Package resolver computes a safe, parallelizable creation order for a set
// of new personnel records whose dependency fields (manager, matrix_manager,
// hr) may reference other records in the same set or records that already
// exist in the target system.
//
// A resolution runs four stages in strict sequence over an immutable
// snapshot: build the dependency graph, schedule level-order batches via
// Kahn's algorithm, break any remaining cycles by clearing the conflicting
// fields into one terminal batch, and project a diagnostic summary. Each
// stage consumes the previous stage's immutable result.
//
// The package performs no I/O and never mutates its input. Members of one
// batch carry no ordering between each other, so callers may create them
// concurrently; how that concurrency is realized is entirely the caller's
// concern.
package resolver

import (
	"github.com/peoplehub/ecsync/pkg/employee"
)

// Resolution is the complete output of one run.
type Resolution struct {
	// Batches in creation order. Every record appears in exactly one batch;
	// each batch is sorted by userid. When cycles were broken, the last
	// batch holds the modified copies.
	Batches [][]employee.Record

	// CycleBatchIndex is the index into Batches of the terminal cycle
	// batch, or -1 when scheduling completed without leftovers.
	CycleBatchIndex int

	// Leftover lists the userids whose in-degree never reached zero,
	// sorted. These form the cycle batch.
	Leftover []string

	// CycleGroups are the strongly connected components among Leftover:
	// the actual cycles, excluding nodes that are only downstream of one.
	CycleGroups [][]string

	// Cleared lists every relationship removed to break cycles.
	Cleared []ClearedReference

	// Missing lists dependency references that matched neither input set,
	// in encounter order.
	Missing []MissingDependency

	Summary Summary
}

// Resolve validates the two input sets and computes the creation plan. It
// fails only on invalid input (empty or duplicate userid); cycles and
// missing dependencies are never errors, they are resolved and reported.
func Resolve(newRecords []employee.Record, existingIDs []string) (*Resolution, error) {
	snap, err := employee.NewSnapshot(newRecords, existingIDs)
	if err != nil {
		return nil, err
	}
	return ResolveSnapshot(snap), nil
}

// ResolveSnapshot computes the creation plan for an already-validated
// snapshot. Pure and deterministic: identical input yields identical
// batches, ordering, and summary.
func ResolveSnapshot(snap *employee.Snapshot) *Resolution {
	g, missing := buildGraph(snap)
	idBatches, leftover := schedule(g)

	byID := make(map[string]employee.Record, snap.Len())
	for _, r := range snap.NewRecords() {
		byID[r.UserID] = r
	}

	batches := make([][]employee.Record, 0, len(idBatches)+1)
	for _, ids := range idBatches {
		recs := make([]employee.Record, 0, len(ids))
		for _, id := range ids {
			recs = append(recs, byID[id])
		}
		batches = append(batches, recs)
	}

	cycleIdx := -1
	cycleBatch, cleared := resolveCycles(snap, leftover)
	if len(cycleBatch) > 0 {
		cycleIdx = len(batches)
		batches = append(batches, cycleBatch)
	}

	return &Resolution{
		Batches:         batches,
		CycleBatchIndex: cycleIdx,
		Leftover:        leftover,
		CycleGroups:     cycleGroups(g, leftover),
		Cleared:         cleared,
		Missing:         missing,
		Summary:         summarize(g, leftover, missing),
	}
}

// BatchIDs returns the batches as userid lists, preserving order. Useful
// for persistence and display where full records are not needed.
func (r *Resolution) BatchIDs() [][]string {
	out := make([][]string, len(r.Batches))
	for i, batch := range r.Batches {
		ids := make([]string, len(batch))
		for j := range batch {
			ids[j] = batch[j].UserID
		}
		out[i] = ids
	}
	return out
}

// TotalRecords returns the number of records across all batches.
func (r *Resolution) TotalRecords() int {
	n := 0
	for _, b := range r.Batches {
		n += len(b)
	}
	return n
}
