package simulation

import (
	"fmt"
	"math/rand"

	"github.com/peoplehub/ecsync/pkg/employee"
)

// roster is a generated input set plus the ground truth the invariant
// checks compare against.
type roster struct {
	records  []employee.Record
	existing []string

	// cycleMembers holds the userids of injected ring records.
	cycleMembers map[string]bool
	// cycleEdges counts injected intra-ring references.
	cycleEdges int
	// ghostRefs counts injected dangling references.
	ghostRefs int
}

// generate builds the synthetic roster for a scenario. References in the
// acyclic portion always point backwards, at earlier records or the
// existing roster, so the injected rings are the only cycles.
func generate(s Scenario, rng *rand.Rand) *roster {
	r := &roster{cycleMembers: make(map[string]bool)}

	r.existing = make([]string, s.Existing)
	for i := range r.existing {
		r.existing[i] = fmt.Sprintf("ec_%04d", i+1)
	}

	pickRef := func(i int) string {
		if s.Existing > 0 && (i == 0 || rng.Float64() < s.ExistingRate) {
			return r.existing[rng.Intn(s.Existing)]
		}
		if i == 0 {
			return ""
		}
		return r.records[rng.Intn(i)].UserID
	}

	for i := 0; i < s.Employees; i++ {
		rec := employee.Record{UserID: fmt.Sprintf("new_%04d", i+1)}
		if rng.Float64() < s.ManagerRate {
			rec.Manager = pickRef(i)
		}
		if rng.Float64() < s.MatrixRate {
			rec.MatrixManager = pickRef(i)
		}
		if rng.Float64() < s.HRRate {
			rec.HR = pickRef(i)
		}
		r.records = append(r.records, rec)
	}

	for ringIdx, size := range s.Cycles {
		if size < 1 {
			continue
		}
		ids := make([]string, size)
		for i := range ids {
			ids[i] = fmt.Sprintf("ring%d_%02d", ringIdx+1, i+1)
		}
		for i, id := range ids {
			r.records = append(r.records, employee.Record{
				UserID:  id,
				Manager: ids[(i+1)%size],
			})
			r.cycleMembers[id] = true
		}
		r.cycleEdges += size
	}

	// Dangling references overwrite the hr field of distinct acyclic
	// records, so the injected count is exact.
	if s.MissingRefs > 0 && s.Employees > 0 {
		n := s.MissingRefs
		if n > s.Employees {
			n = s.Employees
		}
		for i, idx := range rng.Perm(s.Employees)[:n] {
			r.records[idx].HR = fmt.Sprintf("ghost_%03d", i+1)
			r.ghostRefs++
		}
	}

	return r
}
