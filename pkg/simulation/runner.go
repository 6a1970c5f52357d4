package simulation

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/peoplehub/ecsync/pkg/resolver"
)

// RunScenario generates the scenario's roster, resolves it, and evaluates
// every structural invariant. The resolver runs in-process; nothing is
// persisted and no tenant is contacted.
func RunScenario(s Scenario) SimulationResult {
	if s.Seed == 0 {
		s.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(s.Seed))

	log.Printf("Running scenario: %s (seed: %d)", s.Name, s.Seed)

	ros := generate(s, rng)

	started := time.Now()
	res, err := resolver.Resolve(ros.records, ros.existing)
	duration := time.Since(started)

	out := SimulationResult{
		ScenarioName:  s.Name,
		Seed:          s.Seed,
		Duration:      duration,
		TotalNew:      len(ros.records),
		TotalExisting: len(ros.existing),
		CycleBatch:    -1,
	}
	if err != nil {
		out.Invariants = append(out.Invariants, InvariantResult{
			Name:     "resolves",
			Expected: "no error",
			Actual:   err.Error(),
			Passed:   false,
		})
		return out
	}

	out.Batches = len(res.Batches)
	out.CycleBatch = res.CycleBatchIndex
	out.Invariants = checkInvariants(ros, res)

	out.Success = true
	for _, inv := range out.Invariants {
		if !inv.Passed {
			out.Success = false
			break
		}
	}
	return out
}

// checkInvariants compares the resolution against the generator's ground
// truth. Each check stands alone so a report shows every violation class,
// not just the first.
func checkInvariants(ros *roster, res *resolver.Resolution) []InvariantResult {
	var invs []InvariantResult

	batchOf := make(map[string]int)
	dups := 0
	for i, ids := range res.BatchIDs() {
		for _, id := range ids {
			if _, seen := batchOf[id]; seen {
				dups++
			}
			batchOf[id] = i
		}
	}
	invs = append(invs, InvariantResult{
		Name:     "batches_cover_new_set",
		Expected: fmt.Sprintf("%d records once each", len(ros.records)),
		Actual:   fmt.Sprintf("%d placed, %d duplicates", len(batchOf), dups),
		Passed:   len(batchOf) == len(ros.records) && dups == 0,
	})

	// Batch copies already have cleared fields emptied, so any surviving
	// reference into the same or a later batch is a real ordering break.
	violations := 0
	for i, batch := range res.Batches {
		for _, rec := range batch {
			for _, ref := range []string{rec.Manager, rec.MatrixManager, rec.HR} {
				if ref == "" {
					continue
				}
				j, isNew := batchOf[ref]
				if isNew && j >= i {
					violations++
				}
			}
		}
	}
	invs = append(invs, InvariantResult{
		Name:     "dependencies_precede",
		Expected: "0 ordering violations",
		Actual:   fmt.Sprintf("%d", violations),
		Passed:   violations == 0,
	})

	cyclePos := "none"
	cycleLast := res.CycleBatchIndex == -1
	if res.CycleBatchIndex >= 0 {
		cyclePos = fmt.Sprintf("index %d of %d", res.CycleBatchIndex, len(res.Batches))
		cycleLast = res.CycleBatchIndex == len(res.Batches)-1
	}
	invs = append(invs, InvariantResult{
		Name:     "cycle_batch_last",
		Expected: "terminal or absent",
		Actual:   cyclePos,
		Passed:   cycleLast,
	})

	inCycleBatch := 0
	if res.CycleBatchIndex >= 0 {
		for _, id := range res.BatchIDs()[res.CycleBatchIndex] {
			if ros.cycleMembers[id] {
				inCycleBatch++
			}
		}
	}
	invs = append(invs, InvariantResult{
		Name:     "ring_members_batched",
		Expected: fmt.Sprintf("%d ring members in cycle batch", len(ros.cycleMembers)),
		Actual:   fmt.Sprintf("%d", inCycleBatch),
		Passed:   inCycleBatch == len(ros.cycleMembers),
	})

	invs = append(invs, InvariantResult{
		Name:     "cleared_break_rings",
		Expected: fmt.Sprintf("%d intra-ring references cleared", ros.cycleEdges),
		Actual:   fmt.Sprintf("%d", len(res.Cleared)),
		Passed:   len(res.Cleared) == ros.cycleEdges,
	})

	invs = append(invs, InvariantResult{
		Name:     "missing_reported",
		Expected: fmt.Sprintf("%d dangling references", ros.ghostRefs),
		Actual:   fmt.Sprintf("%d", len(res.Missing)),
		Passed:   len(res.Missing) == ros.ghostRefs,
	})

	sum := res.Summary
	consistent := sum.TotalNewEmployees == len(ros.records) &&
		sum.EmployeesInCycles == len(ros.cycleMembers) &&
		sum.EmployeesWithNoDependencies+sum.EmployeesWithDependencies == sum.TotalNewEmployees &&
		sum.MissingDependencyCount == len(res.Missing) &&
		len(sum.CycleUserIDs) == sum.EmployeesInCycles
	invs = append(invs, InvariantResult{
		Name:     "summary_consistent",
		Expected: "counts agree with plan",
		Actual: fmt.Sprintf("new=%d nodeps=%d deps=%d cycles=%d missing=%d",
			sum.TotalNewEmployees, sum.EmployeesWithNoDependencies,
			sum.EmployeesWithDependencies, sum.EmployeesInCycles,
			sum.MissingDependencyCount),
		Passed: consistent,
	})

	return invs
}
