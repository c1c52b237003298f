package regalloc

import (
	"github.com/raymyers/ralph-ra/pkg/ir"
)

// InterferenceGraph is the interference graph of one register class.
// Two variables interfere if they may be live at the same point. Only
// variables of the graph's class can be nodes, so cross-class edges
// cannot exist.
type InterferenceGraph struct {
	Class ir.Class
	// Nodes are the variables of this class
	Nodes VarSet
	// Edges maps each variable to its interfering neighbors
	Edges map[string]VarSet
	// order keeps node insertion order for deterministic iteration
	order []string
}

// NewInterferenceGraph creates an empty graph for a class
func NewInterferenceGraph(c ir.Class) *InterferenceGraph {
	return &InterferenceGraph{
		Class: c,
		Nodes: NewVarSet(),
		Edges: make(map[string]VarSet),
	}
}

// AddNode adds a variable of class c. It returns false, leaving the graph
// unchanged, when c is not the graph's class.
func (g *InterferenceGraph) AddNode(v string, c ir.Class) bool {
	if c != g.Class {
		return false
	}
	if !g.Nodes.Contains(v) {
		g.Nodes.Add(v)
		g.Edges[v] = NewVarSet()
		g.order = append(g.order, v)
	}
	return true
}

// AddEdge adds an interference edge. Both variables must already be nodes
// of this graph; otherwise nothing happens.
func (g *InterferenceGraph) AddEdge(a, b string) {
	if a == b {
		return // No self-edges
	}
	if !g.Nodes.Contains(a) || !g.Nodes.Contains(b) {
		return
	}
	g.Edges[a].Add(b)
	g.Edges[b].Add(a)
}

// HasEdge returns true if there is an interference edge
func (g *InterferenceGraph) HasEdge(a, b string) bool {
	if edges, ok := g.Edges[a]; ok {
		return edges.Contains(b)
	}
	return false
}

// Degree returns the number of neighbors of a variable
func (g *InterferenceGraph) Degree(v string) int {
	return len(g.Edges[v])
}

// Neighbors returns a copy of the neighbors of a variable
func (g *InterferenceGraph) Neighbors(v string) VarSet {
	if edges, ok := g.Edges[v]; ok {
		return edges.Copy()
	}
	return NewVarSet()
}

// Order returns the nodes in insertion order
func (g *InterferenceGraph) Order() []string {
	return g.order
}

// EdgeCount returns the number of undirected edges
func (g *InterferenceGraph) EdgeCount() int {
	n := 0
	for _, e := range g.Edges {
		n += len(e)
	}
	return n / 2
}

// BuildInterferenceGraphs builds one graph per register class. vars lists
// every variable of the function with its resolved class, in discovery
// order; it fixes the node order of the graphs.
func BuildInterferenceGraphs(fn *ir.Function, vars []ir.Var, live *LivenessInfo) map[ir.Class]*InterferenceGraph {
	graphs := map[ir.Class]*InterferenceGraph{
		ir.Narrow: NewInterferenceGraph(ir.Narrow),
		ir.Wide:   NewInterferenceGraph(ir.Wide),
	}
	for _, v := range vars {
		if g, ok := graphs[v.Class]; ok {
			g.AddNode(v.Name, v.Class)
		}
	}

	addClique := func(names []string) {
		for i, a := range names {
			for _, b := range names[i+1:] {
				graphs[ir.Narrow].AddEdge(a, b)
				graphs[ir.Wide].AddEdge(a, b)
			}
		}
	}

	// Everything referenced in one block is treated as simultaneously live.
	for _, refs := range live.Refs {
		addClique(refs.Sorted())
	}

	if live.Mode == ModeBlockConservative {
		addClique(live.MultiBlock.Sorted())
	}

	// Parameters are live from entry until their last reference, so they
	// interfere with everything referenced on the way there.
	for _, p := range fn.Params {
		last, used := live.LastBlock[p.Name]
		if !used {
			continue
		}
		for i := 0; i <= last; i++ {
			for other := range live.Refs[i] {
				graphs[ir.Narrow].AddEdge(p.Name, other)
				graphs[ir.Wide].AddEdge(p.Name, other)
			}
		}
	}

	return graphs
}
