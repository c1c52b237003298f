package regalloc

import (
	"slices"
	"sort"

	"github.com/raymyers/ralph-ra/pkg/diag"
	"github.com/raymyers/ralph-ra/pkg/ir"
)

// Allocator colors one interference graph with a priority-ordered greedy
// heuristic. It never fails: variables it cannot color are spilled.
type Allocator struct {
	graph *InterferenceGraph
	pool  []string // general pool, in preference order

	// LoopPool is the sub-pool reserved for loop induction variables
	LoopPool []string
	// LoopVars are colored first, against LoopPool
	LoopVars VarSet
	// Seeds pins variables to conventional registers before coloring.
	// Seeds ignore interference; the heal pass repairs any clash.
	Seeds map[string]string
	// Skip lists variables that already have a home (stack parameters)
	Skip VarSet

	kinds map[string]ir.Kind
	index map[string]int // declaration order, for tie-breaks
	sink  *diag.Sink

	colors  map[string]string
	spilled VarSet
	rank    map[string]int
}

// AllocationResult holds the coloring of one class
type AllocationResult struct {
	Class ir.Class
	Pool  []string
	// Regs maps colored variables to physical registers
	Regs map[string]string
	// Spilled holds variables that did not get a register
	Spilled VarSet
	// Healed lists variables spilled by the conflict-resolution pass
	Healed []string
}

// NewAllocator creates an allocator for graph g. vars supplies kinds and
// declaration order; sink may be nil.
func NewAllocator(g *InterferenceGraph, pool []string, vars []ir.Var, sink *diag.Sink) *Allocator {
	a := &Allocator{
		graph:    g,
		pool:     pool,
		LoopVars: NewVarSet(),
		Seeds:    make(map[string]string),
		Skip:     NewVarSet(),
		kinds:    make(map[string]ir.Kind),
		index:    make(map[string]int),
		sink:     sink,
		colors:   make(map[string]string),
		spilled:  NewVarSet(),
		rank:     make(map[string]int),
	}
	for i, v := range vars {
		a.kinds[v.Name] = v.Kind
		a.index[v.Name] = i
	}
	return a
}

// tier orders kinds: parameters, then locals, then temporaries
func tier(k ir.Kind) int {
	switch k {
	case ir.Param:
		return 0
	case ir.Local:
		return 1
	default:
		return 2
	}
}

// PriorityOrder returns the graph's nodes sorted by tier, then by
// descending degree, then by declaration order.
func (a *Allocator) PriorityOrder() []string {
	nodes := append([]string(nil), a.graph.Order()...)
	sort.SliceStable(nodes, func(i, j int) bool {
		ti, tj := tier(a.kinds[nodes[i]]), tier(a.kinds[nodes[j]])
		if ti != tj {
			return ti < tj
		}
		di, dj := a.graph.Degree(nodes[i]), a.graph.Degree(nodes[j])
		if di != dj {
			return di > dj
		}
		return a.index[nodes[i]] < a.index[nodes[j]]
	})
	return nodes
}

// Allocate colors the graph and returns the result
func (a *Allocator) Allocate() *AllocationResult {
	order := a.PriorityOrder()
	for i, v := range order {
		a.rank[v] = i
	}

	a.colorLoopVars(order)
	a.applySeeds(order)

	for _, v := range order {
		if a.done(v) {
			continue
		}
		if reg, ok := a.pick(v, a.pool); ok {
			a.colors[v] = reg
		} else {
			a.spilled.Add(v)
		}
	}

	healed := a.heal(order)

	return &AllocationResult{
		Class:   a.graph.Class,
		Pool:    a.pool,
		Regs:    a.colors,
		Spilled: a.spilled,
		Healed:  healed,
	}
}

func (a *Allocator) done(v string) bool {
	if a.Skip.Contains(v) || a.spilled.Contains(v) {
		return true
	}
	_, colored := a.colors[v]
	return colored
}

// colorLoopVars gives induction variables a loop sub-pool register.
// Those that do not fit are left to their tier.
func (a *Allocator) colorLoopVars(order []string) {
	if len(a.LoopPool) == 0 {
		return
	}
	var loopVars []string
	for _, v := range order {
		if a.LoopVars.Contains(v) && !a.Skip.Contains(v) {
			loopVars = append(loopVars, v)
		}
	}
	// Most constrained first regardless of tier
	sort.SliceStable(loopVars, func(i, j int) bool {
		return a.graph.Degree(loopVars[i]) > a.graph.Degree(loopVars[j])
	})
	for _, v := range loopVars {
		if reg, ok := a.pick(v, a.LoopPool); ok {
			a.colors[v] = reg
		}
	}
}

func (a *Allocator) applySeeds(order []string) {
	for _, v := range order {
		reg, ok := a.Seeds[v]
		if !ok || a.done(v) || !a.graph.Nodes.Contains(v) {
			continue
		}
		if !slices.Contains(a.pool, reg) {
			continue
		}
		a.colors[v] = reg
	}
}

// pick returns the first register of pool not held by a colored neighbor
func (a *Allocator) pick(v string, pool []string) (string, bool) {
	used := make(map[string]bool)
	for n := range a.graph.Edges[v] {
		if reg, ok := a.colors[n]; ok {
			used[reg] = true
		}
	}
	for _, reg := range pool {
		if !used[reg] {
			return reg, true
		}
	}
	return "", false
}

// heal scans every edge and, where both ends share a register, spills the
// lower-priority end. Only seeding can produce such clashes.
func (a *Allocator) heal(order []string) []string {
	var healed []string
	for _, u := range order {
		for _, w := range a.graph.Edges[u].Sorted() {
			ru, okU := a.colors[u]
			rw, okW := a.colors[w]
			if !okU || !okW || ru != rw {
				continue
			}
			victim, keep := w, u
			if a.rank[u] > a.rank[w] {
				victim, keep = u, w
			}
			delete(a.colors, victim)
			a.spilled.Add(victim)
			healed = append(healed, victim)
			if a.sink != nil {
				a.sink.Report(diag.AllocationConflict, victim,
					"shares %s with interfering %s; spilled", ru, keep)
			}
		}
	}
	return healed
}
