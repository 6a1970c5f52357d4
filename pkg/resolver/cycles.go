package resolver

import (
	"sort"

	"github.com/peoplehub/ecsync/pkg/employee"
)

// ClearedReference records one relationship removed while breaking a cycle:
// the record, the field, and the userid the field pointed at. Downstream
// repair steps use this list to restore the relationship once all records
// exist.
type ClearedReference struct {
	UserID string `json:"userid"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

// resolveCycles derives the terminal batch from the leftover set: a copy of
// each leftover record with every dependency field that references another
// leftover member cleared. Fields referencing already-scheduled or existing
// records remain valid at creation time and are preserved. A self-reference
// is always cleared. Inputs are never mutated; the batch follows leftover's
// order (sorted by userid).
func resolveCycles(snap *employee.Snapshot, leftover []string) ([]employee.Record, []ClearedReference) {
	if len(leftover) == 0 {
		return nil, nil
	}
	in := make(map[string]struct{}, len(leftover))
	for _, id := range leftover {
		in[id] = struct{}{}
	}
	byID := make(map[string]employee.Record, snap.Len())
	for _, r := range snap.NewRecords() {
		byID[r.UserID] = r
	}

	batch := make([]employee.Record, 0, len(leftover))
	var cleared []ClearedReference
	for _, id := range leftover {
		rec := byID[id]
		for _, d := range employee.Fields() {
			v := d.Value(&rec)
			if v == "" {
				continue
			}
			if _, member := in[v]; member {
				cleared = append(cleared, ClearedReference{UserID: id, Field: string(d.Name), Value: v})
				d.Clear(&rec)
			}
		}
		batch = append(batch, rec)
	}
	return batch, cleared
}

// cycleGroups computes the strongly connected components of the leftover
// subgraph via Tarjan's algorithm. Only genuine cycles qualify: components
// of two or more nodes, plus single nodes carrying a self-edge. Leftover
// nodes that are merely downstream of a cycle belong to no group. Members
// are sorted ascending; groups are ordered by size descending, then by
// first member.
func cycleGroups(g *Graph, leftover []string) [][]string {
	if len(leftover) == 0 {
		return nil
	}
	in := make(map[string]struct{}, len(leftover))
	for _, id := range leftover {
		in[id] = struct{}{}
	}

	adj := make(map[string][]string, len(leftover))
	selfLoop := make(map[string]bool)
	for _, id := range leftover {
		seen := make(map[string]struct{})
		for _, e := range g.outgoing[id] {
			if _, member := in[e.To]; !member {
				continue
			}
			if e.To == id {
				selfLoop[id] = true
				continue
			}
			if _, dup := seen[e.To]; dup {
				continue
			}
			seen[e.To] = struct{}{}
			adj[id] = append(adj[id], e.To)
		}
		sort.Strings(adj[id])
	}

	index := make(map[string]int, len(leftover))
	low := make(map[string]int, len(leftover))
	onStack := make(map[string]bool, len(leftover))
	var stack []string
	next := 0
	var groups [][]string

	var connect func(v string)
	connect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, visited := index[w]; !visited {
				connect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) > 1 || selfLoop[comp[0]] {
				sort.Strings(comp)
				groups = append(groups, comp)
			}
		}
	}

	for _, id := range leftover {
		if _, visited := index[id]; !visited {
			connect(id)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i]) != len(groups[j]) {
			return len(groups[i]) > len(groups[j])
		}
		return groups[i][0] < groups[j][0]
	})
	return groups
}
