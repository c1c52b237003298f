package stacking

import (
	"github.com/raymyers/ralph-ra/pkg/loc"
	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"tlog.app/go/errors"
)

// Locations binds variables of one function to their locations
type Locations map[string]loc.Loc

// Locate binds every variable of an allocated context: colored variables to
// their register, stack parameters to their incoming slot and spilled
// variables to a new frame slot (or static address). Spill slots are
// handed out in discovery order.
func Locate(ctx *regalloc.Context, frame *Frame) (Locations, error) {
	locs := make(Locations, len(ctx.Vars))

	for _, b := range ctx.Params {
		if b.Reg == "" {
			v, _ := ctx.Var(b.Var.Name)
			locs[b.Var.Name] = loc.S{Ofs: b.Ofs, Size: v.Class.Size()}
		}
	}

	for _, v := range ctx.Vars {
		if _, done := locs[v.Name]; done {
			continue
		}
		res := ctx.Results[v.Class]
		if reg, ok := res.Regs[v.Name]; ok {
			locs[v.Name] = loc.R{Reg: reg}
			continue
		}
		l, err := frame.Slot(v.Class)
		if err != nil {
			return locs, errors.Wrap(err, "spill %v", v.Name)
		}
		locs[v.Name] = l
	}
	return locs, nil
}
