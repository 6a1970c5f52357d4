package graph

import (
	"strconv"

	"github.com/peoplehub/ecsync/pkg/employee"
	"github.com/peoplehub/ecsync/pkg/resolver"
)

type clearedKey struct {
	userID string
	field  string
}

// Project builds the reference graph for one resolution. Nodes come from the
// snapshot's records plus every id they reference; edges come from the
// original records, so references cleared during cycle resolution still
// appear, marked Cleared. Employee nodes carry their batch index and, for
// cycle batch members, a cycle flag.
//
// Pure and deterministic: identical inputs yield an identical graph.
func Project(snap *employee.Snapshot, res *resolver.Resolution) *Graph {
	g := NewGraph()

	batchOf := make(map[string]int, snap.Len())
	for i, ids := range res.BatchIDs() {
		for _, id := range ids {
			batchOf[id] = i
		}
	}

	cleared := make(map[clearedKey]bool, len(res.Cleared))
	for _, c := range res.Cleared {
		cleared[clearedKey{c.UserID, c.Field}] = true
	}

	for _, r := range snap.NewRecords() {
		props := map[string]string{}
		if idx, ok := batchOf[r.UserID]; ok {
			props["batch"] = strconv.Itoa(idx)
			if idx == res.CycleBatchIndex {
				props["cycle"] = "true"
			}
		}
		g.AddNode(&Node{
			ID:         r.UserID,
			Type:       NodeEmployee,
			Label:      r.UserID,
			Properties: props,
		})
	}

	// Referenced ids outside the employee set become existing or missing
	// nodes on first sight.
	for _, r := range snap.NewRecords() {
		for _, ref := range r.Refs() {
			to := ref.Value
			if _, seen := g.Nodes[to]; !seen {
				t := NodeMissing
				if snap.Existing(to) {
					t = NodeExisting
				}
				g.AddNode(&Node{ID: to, Type: t, Label: to})
			}
			g.AddEdge(&Edge{
				FromID:  r.UserID,
				ToID:    to,
				Type:    EdgeType(ref.Field),
				Cleared: cleared[clearedKey{r.UserID, string(ref.Field)}],
			})
		}
	}

	return g
}
