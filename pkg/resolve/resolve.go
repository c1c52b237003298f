// Package resolve is the last allocation step: every variable operand the
// emitter meets is turned into a location through Resolve, which allocates
// on the spot for anything the main pass did not cover.
package resolve

import (
	"github.com/raymyers/ralph-ra/pkg/diag"
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/loc"
	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"github.com/raymyers/ralph-ra/pkg/stacking"
	"tlog.app/go/errors"
)

// Resolver owns the final variable-to-location map of one function
type Resolver struct {
	ctx   *regalloc.Context
	frame *stacking.Frame
	locs  stacking.Locations

	// Emergency lists variables allocated on the spot, in order
	Emergency []string
}

// New creates a resolver over the locations computed by stacking.Locate.
// Late allocations are added to locs and frame.
func New(ctx *regalloc.Context, frame *stacking.Frame, locs stacking.Locations) *Resolver {
	if locs == nil {
		locs = make(stacking.Locations)
	}
	return &Resolver{ctx: ctx, frame: frame, locs: locs}
}

// Declare makes a late variable known with its class and kind. Declaring
// a name that already exists has no effect.
func (r *Resolver) Declare(v ir.Var) ir.Var {
	return r.ctx.AddVar(v)
}

// Resolve returns the location of a variable. A variable without one is
// allocated now with the same tiers as the main pass (free register,
// frame slot, static address) and reported as UnresolvedVariable.
// Resolving the same name again always returns the same location.
func (r *Resolver) Resolve(name string) (loc.Loc, error) {
	if l, ok := r.locs[name]; ok {
		return l, nil
	}

	v, known := r.ctx.Var(name)
	if !known {
		v = r.ctx.AddVar(ir.Var{Name: name, Kind: ir.Temp})
	}

	l, err := r.allocate(v)
	if err != nil {
		return nil, errors.Wrap(err, "resolve %v", name)
	}
	r.locs[name] = l
	r.Emergency = append(r.Emergency, name)
	r.ctx.Sink.Report(diag.UnresolvedVariable, name, "no location after allocation, assigned %v", l)
	return l, nil
}

// allocate takes a pool register no variable of the function holds, then
// falls back to the frame.
func (r *Resolver) allocate(v ir.Var) (loc.Loc, error) {
	taken := make(map[string]bool)
	for _, l := range r.locs {
		if reg, ok := loc.IsReg(l); ok {
			taken[reg] = true
		}
	}
	pool := r.ctx.Pools[v.Class]
	if pool == nil {
		pool = r.ctx.Target.Class(v.Class).General()
	}
	for _, reg := range pool {
		if !taken[reg] {
			return loc.R{Reg: reg}, nil
		}
	}
	return r.frame.Slot(v.Class)
}

// Locations returns the complete location map
func (r *Resolver) Locations() stacking.Locations {
	return r.locs
}

// MaxFrameBytes returns the spill area size including late allocations
func (r *Resolver) MaxFrameBytes() int {
	return r.frame.MaxBytes()
}
