// Package callconv analyzes a module against the R8/16 calling convention:
// which functions take parameters, which make calls, where parameters
// arrive and how each function's register pools are ordered.
package callconv

import (
	"slices"

	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/target"
)

// IncomingBase is the offset from FP of the first stack-passed parameter:
// the caller's return address and the saved FP sit in between.
const IncomingBase = 4

// Info is the result of scanning a module
type Info struct {
	ParamCount map[string]int
	Callers    map[string]bool
}

// FunctionMeta is what the allocator needs to know about one function
type FunctionMeta struct {
	Name       string
	Params     []ir.Var
	MakesCalls bool
	IsEntry    bool
}

// Analyze scans every instruction of the module once.
func Analyze(m *ir.Module) *Info {
	info := &Info{
		ParamCount: make(map[string]int),
		Callers:    make(map[string]bool),
	}
	for _, fn := range m.Functions {
		info.ParamCount[fn.Name] = len(fn.Params)
		if fn.MakesCalls() {
			info.Callers[fn.Name] = true
		}
	}
	return info
}

// Meta builds the metadata of fn from the analysis
func (info *Info) Meta(fn *ir.Function) FunctionMeta {
	return FunctionMeta{
		Name:       fn.Name,
		Params:     fn.Params,
		MakesCalls: info.Callers[fn.Name],
		IsEntry:    fn.Entry,
	}
}

// Ordering names the pool ordering policy applied to a function
type Ordering int

const (
	CalleeFirst Ordering = iota // callee-saved, then caller-saved
	ParamFirst                  // parameter registers, caller-saved, callee-saved
	Widest                      // entry point: every allocatable register
)

func (o Ordering) String() string {
	switch o {
	case ParamFirst:
		return "param-first"
	case Widest:
		return "widest"
	default:
		return "callee-first"
	}
}

// OrderingFor picks the pool policy of a function
func OrderingFor(meta FunctionMeta) Ordering {
	switch {
	case meta.IsEntry:
		return Widest
	case len(meta.Params) > 0 && meta.MakesCalls:
		return ParamFirst
	default:
		return CalleeFirst
	}
}

// PoolFor returns the ordered general pool of one class for a function.
// When loopReserved is set the loop sub-pool is held back for induction
// variables even in the entry point.
func PoolFor(meta FunctionMeta, rc *target.RegClass, loopReserved bool) []string {
	var pool []string
	switch OrderingFor(meta) {
	case Widest:
		pool = append(pool, rc.CallerSaved...)
		pool = append(pool, rc.CalleeSaved...)
		if !loopReserved {
			pool = append(pool, rc.Loop...)
		}
	case ParamFirst:
		pool = append(pool, rc.Params...)
		for _, r := range rc.CallerSaved {
			if !slices.Contains(rc.Params, r) {
				pool = append(pool, r)
			}
		}
		pool = append(pool, rc.CalleeSaved...)
	default:
		pool = append(pool, rc.CalleeSaved...)
		pool = append(pool, rc.CallerSaved...)
	}
	return pool
}

// ParamBinding says where a parameter arrives
type ParamBinding struct {
	Var ir.Var
	// Reg is the parameter register, empty for stack-passed parameters
	Reg string
	// Ofs is the FP-relative offset of a stack-passed parameter
	Ofs int
}

// ParamBindings assigns parameters, in declaration order, to the
// parameter registers of their class; the rest are passed on the stack
// above the return address. Unknown classes travel as Wide.
func ParamBindings(params []ir.Var, t *target.Target) []ParamBinding {
	used := map[ir.Class]int{}
	ofs := IncomingBase
	bindings := make([]ParamBinding, 0, len(params))
	for _, p := range params {
		c := p.Class
		if c != ir.Narrow {
			c = ir.Wide
		}
		b := ParamBinding{Var: p}
		if reg, ok := t.Class(c).ParamReg(used[c]); ok {
			b.Reg = reg
			used[c]++
		} else {
			b.Ofs = ofs
			ofs += c.Size()
		}
		bindings = append(bindings, b)
	}
	return bindings
}
