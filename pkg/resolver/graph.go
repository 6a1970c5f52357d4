package resolver

import (
	"github.com/peoplehub/ecsync/pkg/employee"
)

// Edge records that prerequisite From must be created before dependent To.
// Field names the relationship that produced the edge; a record referencing
// the same prerequisite through two fields contributes two edges.
type Edge struct {
	From  string
	To    string
	Field employee.Field
}

// MissingDependency reports a dependency field whose value matched neither a
// new nor an existing record. It carries no edge and never blocks
// scheduling; the referencing record proceeds in whichever batch its other
// dependencies allow.
type MissingDependency struct {
	UserID  string `json:"userid"`
	Field   string `json:"field"`
	Missing string `json:"missing_dependency"`
}

// Graph is the dependency graph over the records to create. Nodes are the
// userids of the new records; edges exist only between new records, since a
// reference to an existing record is satisfied before the run starts.
// Immutable once built; the scheduler works on its own in-degree copy.
type Graph struct {
	nodes    []string // input order
	outgoing map[string][]Edge
	indegree map[string]int
}

// buildGraph walks every record's dependency fields in canonical order and
// classifies each populated value: a self-reference becomes a degenerate
// self-edge, a reference to an existing record is dropped as satisfied, a
// reference to another new record becomes an edge, and anything else is
// collected as a MissingDependency. Missing entries are returned in
// encounter order (input record order, then field order).
func buildGraph(snap *employee.Snapshot) (*Graph, []MissingDependency) {
	recs := snap.NewRecords()
	g := &Graph{
		nodes:    make([]string, 0, len(recs)),
		outgoing: make(map[string][]Edge, len(recs)),
		indegree: make(map[string]int, len(recs)),
	}
	for i := range recs {
		g.nodes = append(g.nodes, recs[i].UserID)
		g.indegree[recs[i].UserID] = 0
	}

	var missing []MissingDependency
	for i := range recs {
		r := &recs[i]
		for _, ref := range r.Refs() {
			switch {
			case ref.Value == r.UserID:
				g.addEdge(Edge{From: ref.Value, To: r.UserID, Field: ref.Field})
			case snap.Existing(ref.Value):
				// satisfied before this run; no edge
			case snap.IsNew(ref.Value):
				g.addEdge(Edge{From: ref.Value, To: r.UserID, Field: ref.Field})
			default:
				missing = append(missing, MissingDependency{
					UserID:  r.UserID,
					Field:   string(ref.Field),
					Missing: ref.Value,
				})
			}
		}
	}
	return g, missing
}

func (g *Graph) addEdge(e Edge) {
	g.outgoing[e.From] = append(g.outgoing[e.From], e)
	g.indegree[e.To]++
}

// NodeCount returns the number of records to create.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of unresolved prerequisite edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, es := range g.outgoing {
		n += len(es)
	}
	return n
}
