package resolver

// Summary is the diagnostic projection of one resolution run. The JSON
// field names are the contract consumed by run history storage, the HTTP
// API, and downstream notification; they must not change.
type Summary struct {
	TotalNewEmployees           int                 `json:"total_new_employees"`
	EmployeesWithNoDependencies int                 `json:"employees_with_no_dependencies"`
	EmployeesWithDependencies   int                 `json:"employees_with_dependencies"`
	EmployeesInCycles           int                 `json:"employees_in_cycles"`
	CycleUserIDs                []string            `json:"cycle_userids"`
	MissingDependencies         []MissingDependency `json:"missing_dependencies"`
	MissingDependencyCount      int                 `json:"missing_dependency_count"`
}

// summarize derives the summary from results already produced by the graph
// builder and scheduler. It rescans nothing and has no side effects; calling
// it repeatedly yields equal values.
func summarize(g *Graph, leftover []string, missing []MissingDependency) Summary {
	noDeps := 0
	for _, id := range g.nodes {
		if g.indegree[id] == 0 {
			noDeps++
		}
	}

	// Empty lists marshal as [] rather than null.
	cycleIDs := make([]string, len(leftover))
	copy(cycleIDs, leftover)
	if missing == nil {
		missing = []MissingDependency{}
	}

	return Summary{
		TotalNewEmployees:           len(g.nodes),
		EmployeesWithNoDependencies: noDeps,
		EmployeesWithDependencies:   len(g.nodes) - noDeps,
		EmployeesInCycles:           len(leftover),
		CycleUserIDs:                cycleIDs,
		MissingDependencies:         missing,
		MissingDependencyCount:      len(missing),
	}
}
