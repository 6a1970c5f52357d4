package resolver

import "sort"

// schedule runs level-order Kahn's algorithm over g. Each returned batch is
// the set of nodes whose in-degree reached zero at that level, sorted by
// userid; members of one batch have no ordering between them. Nodes whose
// in-degree never reaches zero are returned as the leftover set, sorted.
//
// Determinism: for identical input the batches and leftover set are
// identical across runs. No map iteration order reaches the output.
func schedule(g *Graph) (batches [][]string, leftover []string) {
	indeg := make(map[string]int, len(g.indegree))
	for id, d := range g.indegree {
		indeg[id] = d
	}

	var current []string
	for _, id := range g.nodes {
		if indeg[id] == 0 {
			current = append(current, id)
		}
	}
	sort.Strings(current)

	scheduled := 0
	for len(current) > 0 {
		batches = append(batches, current)
		scheduled += len(current)

		var next []string
		for _, id := range current {
			for _, e := range g.outgoing[id] {
				indeg[e.To]--
				if indeg[e.To] == 0 {
					next = append(next, e.To)
				}
			}
		}
		sort.Strings(next)
		current = next
	}

	if scheduled == len(g.nodes) {
		return batches, nil
	}
	for _, id := range g.nodes {
		if indeg[id] > 0 {
			leftover = append(leftover, id)
		}
	}
	sort.Strings(leftover)
	return batches, leftover
}
