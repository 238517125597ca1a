package analyze

import "slices"

// Topo is the type-level resolution order. Only type-reference edges
// between declared types participate; field pseudo-nodes and
// expression edges do not constrain declaration order.
type Topo struct {
	Order  []string
	Cyclic bool
	Cycles []string // nodes left with unresolved dependencies
}

// toposort runs Kahn's algorithm over the type-reference subgraph of
// g restricted to the declared names. An edge A -> B means A depends
// on B, so B sorts first. Ready nodes drain in sorted order to keep
// the result deterministic.
func toposort(g *Graph, declared map[string]struct{}) *Topo {
	// reverse adjacency: dependency -> dependents
	dependents := make(map[string][]string, len(declared))
	indeg := make(map[string]int, len(declared))
	for name := range declared {
		indeg[name] = 0
	}
	for _, e := range g.Edges() {
		if e.Kind != EdgeTypeRef || e.From == e.To {
			continue
		}
		if _, ok := declared[e.From]; !ok {
			continue
		}
		if _, ok := declared[e.To]; !ok {
			continue
		}
		dependents[e.To] = append(dependents[e.To], e.From)
		indeg[e.From]++
	}

	topo := &Topo{Order: make([]string, 0, len(declared))}
	var ready []string
	for name, d := range indeg {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	slices.Sort(ready)

	for len(ready) > 0 {
		var next []string
		for _, name := range ready {
			topo.Order = append(topo.Order, name)
			for _, dep := range dependents[name] {
				indeg[dep]--
				if indeg[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		slices.Sort(next)
		ready = next
	}

	if len(topo.Order) != len(declared) {
		topo.Cyclic = true
		topo.Order = nil
		for name, d := range indeg {
			if d > 0 {
				topo.Cycles = append(topo.Cycles, name)
			}
		}
		slices.Sort(topo.Cycles)
	}
	return topo
}
