// Package analyze builds the layout dependency graph over declared
// types, rejects duplicate names and tags, detects forward references
// and dependency cycles, and produces the topological resolution order.
package analyze

import (
	"slices"
)

// EdgeKind classifies why one node depends on another.
type EdgeKind uint8

const (
	// EdgeTypeRef marks a type embedding another declared type,
	// including sizeof/alignof uses.
	EdgeTypeRef EdgeKind = iota + 1
	// EdgeFieldRef marks an expression reading a specific field.
	EdgeFieldRef
	// EdgeSizeExpr marks an array count expression reference.
	EdgeSizeExpr
	// EdgeTagExpr marks an enum tag expression reference.
	EdgeTagExpr
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeTypeRef:
		return "type reference"
	case EdgeFieldRef:
		return "field reference"
	case EdgeSizeExpr:
		return "size expression"
	case EdgeTagExpr:
		return "tag expression"
	}
	return "unknown"
}

// Edge is one directed dependency: From needs To before it can lay
// out. Context records where in the schema the dependency arose.
type Edge struct {
	From    string
	To      string
	Kind    EdgeKind
	Context string
}

// Graph is the directed layout-dependency graph. Nodes are declared
// type names plus "Type.field" pseudo-nodes for field references.
type Graph struct {
	nodes map[string]struct{}
	edges []Edge
	adj   map[string][]string
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		adj:   make(map[string][]string),
	}
}

// AddNode registers a node without edges.
func (g *Graph) AddNode(name string) {
	if _, ok := g.nodes[name]; !ok {
		g.nodes[name] = struct{}{}
		g.adj[name] = nil
	}
}

// AddEdge registers a dependency, creating both endpoints as needed.
func (g *Graph) AddEdge(e Edge) {
	g.AddNode(e.From)
	g.AddNode(e.To)
	g.adj[e.From] = append(g.adj[e.From], e.To)
	g.edges = append(g.edges, e)
}

// Nodes returns all node names, sorted.
func (g *Graph) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Edges returns the edge list in insertion order.
func (g *Graph) Edges() []Edge { return g.edges }

// CyclePath is one detected dependency cycle: the node sequence with
// the first node repeated at the end, plus the edges along it.
type CyclePath struct {
	Cycle []string
	Edges []Edge
}

// Cycles finds dependency cycles with a depth-first search. Roots and
// neighbors are visited in sorted order so the result is deterministic.
func (g *Graph) Cycles() []CyclePath {
	var (
		cycles   []CyclePath
		visited  = make(map[string]bool)
		recStack = make(map[string]bool)
		path     []string
	)
	for _, node := range g.Nodes() {
		if !visited[node] {
			g.dfsCycles(node, visited, recStack, &path, &cycles)
		}
	}
	return cycles
}

func (g *Graph) dfsCycles(node string, visited, recStack map[string]bool, path *[]string, cycles *[]CyclePath) {
	visited[node] = true
	recStack[node] = true
	*path = append(*path, node)

	neighbors := slices.Clone(g.adj[node])
	slices.Sort(neighbors)
	for _, next := range neighbors {
		if !visited[next] {
			g.dfsCycles(next, visited, recStack, path, cycles)
		} else if recStack[next] {
			start := slices.Index(*path, next)
			cycle := slices.Clone((*path)[start:])
			cycle = append(cycle, next)
			*cycles = append(*cycles, CyclePath{
				Cycle: cycle,
				Edges: g.edgesAlong(cycle),
			})
		}
	}

	*path = (*path)[:len(*path)-1]
	recStack[node] = false
}

func (g *Graph) edgesAlong(cycle []string) []Edge {
	var out []Edge
	for i := 0; i+1 < len(cycle); i++ {
		for _, e := range g.edges {
			if e.From == cycle[i] && e.To == cycle[i+1] {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// chainBetween finds the shortest dependency path from one node to
// another with a breadth-first search, for violation diagnostics.
func (g *Graph) chainBetween(from, to string) []string {
	if from == to {
		return []string{from}
	}
	parent := map[string]string{}
	visited := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == to {
			var chain []string
			for node := to; node != from; node = parent[node] {
				chain = append(chain, node)
			}
			chain = append(chain, from)
			slices.Reverse(chain)
			return chain
		}
		neighbors := slices.Clone(g.adj[current])
		slices.Sort(neighbors)
		for _, next := range neighbors {
			if !visited[next] {
				visited[next] = true
				parent[next] = current
				queue = append(queue, next)
			}
		}
	}
	return nil
}
