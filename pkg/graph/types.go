// Package graph projects a resolution into a reference graph for dashboards
// and inspection tooling: employees as nodes, dependency fields as edges,
// annotated with batch placement and cycle membership.
package graph

// NodeType represents the semantic type of a node in the reference graph.
type NodeType string

const (
	NodeEmployee NodeType = "employee" // scheduled for creation in this run
	NodeExisting NodeType = "existing" // already present in the target system
	NodeMissing  NodeType = "missing"  // referenced but found in neither set
)

// EdgeType names the dependency field an edge was projected from.
type EdgeType string

const (
	EdgeManager       EdgeType = "manager"
	EdgeMatrixManager EdgeType = "matrix_manager"
	EdgeHR            EdgeType = "hr"
)

// Node represents a vertex in the reference graph.
type Node struct {
	ID         string            `json:"id"`
	Type       NodeType          `json:"type"`
	Label      string            `json:"label"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Edge represents one populated dependency field. Cleared marks references
// removed during cycle resolution; the created record will not carry them.
type Edge struct {
	FromID  string   `json:"from_id"`
	ToID    string   `json:"to_id"`
	Type    EdgeType `json:"type"`
	Cleared bool     `json:"cleared,omitempty"`
}

// Graph represents the projected reference graph for one resolution.
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`
}

// NewGraph creates an empty reference graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
		Edges: make([]*Edge, 0),
	}
}

// AddNode adds a node to the graph, replacing any node with the same ID.
func (g *Graph) AddNode(n *Node) {
	g.Nodes[n.ID] = n
}

// AddEdge adds an edge to the graph.
func (g *Graph) AddEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
}
