package regalloc

import (
	"github.com/raymyers/ralph-ra/pkg/callconv"
	"github.com/raymyers/ralph-ra/pkg/diag"
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/target"
)

// Context holds all allocation state of one function. A fresh Context is
// built for every function so nothing leaks between them.
type Context struct {
	Fn     *ir.Function
	Meta   callconv.FunctionMeta
	Target *target.Target
	Sink   *diag.Sink
	// Force overrides the interference mode choice
	Force Mode

	// Vars lists every variable in discovery order with its resolved class
	Vars   []ir.Var
	byName map[string]int

	Params  []callconv.ParamBinding
	Live    *LivenessInfo
	Graphs  map[ir.Class]*InterferenceGraph
	Pools   map[ir.Class][]string
	Results map[ir.Class]*AllocationResult
}

// NewContext creates the allocation context of fn and discovers its
// variables. Variables without a usable class default to Wide with an
// InvalidRegisterClass warning.
func NewContext(fn *ir.Function, meta callconv.FunctionMeta, t *target.Target, sink *diag.Sink) *Context {
	if sink == nil {
		sink = diag.NewSink(fn.Name, nil)
	}
	c := &Context{
		Fn:     fn,
		Meta:   meta,
		Target: t,
		Sink:   sink,
		byName: make(map[string]int),
	}
	c.discoverVars()
	return c
}

func (c *Context) discoverVars() {
	for _, p := range c.Fn.Params {
		c.addVar(p, true)
	}
	for _, b := range c.Fn.Blocks {
		for _, in := range b.Instrs {
			for _, name := range in.Vars() {
				if _, seen := c.byName[name]; seen {
					continue
				}
				v, declared := c.Fn.Lookup(name)
				if !declared {
					v = ir.Var{Name: name, Kind: ir.Temp}
				}
				c.addVar(v, declared)
			}
		}
	}
}

func (c *Context) addVar(v ir.Var, declared bool) {
	if _, seen := c.byName[v.Name]; seen {
		return
	}
	if v.Class != ir.Narrow && v.Class != ir.Wide {
		if declared {
			c.Sink.Report(diag.InvalidRegisterClass, v.Name, "missing register class, using wide")
		} else {
			c.Sink.Report(diag.InvalidRegisterClass, v.Name, "undeclared variable, using wide")
		}
		v.Class = ir.Wide
	}
	c.byName[v.Name] = len(c.Vars)
	c.Vars = append(c.Vars, v)
}

// Var returns a discovered variable
func (c *Context) Var(name string) (ir.Var, bool) {
	i, ok := c.byName[name]
	if !ok {
		return ir.Var{}, false
	}
	return c.Vars[i], true
}

// DeclOrder returns the variables in declaration order: parameters, then
// declared variables, then undeclared ones in discovery order.
func (c *Context) DeclOrder() []ir.Var {
	out := make([]ir.Var, 0, len(c.Vars))
	placed := make(map[string]bool, len(c.Vars))
	add := func(name string) {
		if v, ok := c.Var(name); ok && !placed[name] {
			placed[name] = true
			out = append(out, v)
		}
	}
	for _, p := range c.Fn.Params {
		add(p.Name)
	}
	for _, d := range c.Fn.Decls {
		add(d.Name)
	}
	for _, v := range c.Vars {
		add(v.Name)
	}
	return out
}

// AddVar registers a variable created after discovery (for example a
// materialized literal). It returns the variable as stored.
func (c *Context) AddVar(v ir.Var) ir.Var {
	c.addVar(v, v.Class != ir.ClassUnknown)
	got, _ := c.Var(v.Name)
	return got
}

// Allocate runs liveness, builds the interference graphs and colors both
// register classes.
func (c *Context) Allocate() {
	threshold := c.Target.ConservativeThreshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c.Live = AnalyzeLiveness(c.Fn, threshold, c.Force)
	c.Graphs = BuildInterferenceGraphs(c.Fn, c.Vars, c.Live)
	c.Params = callconv.ParamBindings(c.paramVars(), c.Target)

	seeds, stackParams := c.seeds()

	c.Pools = make(map[ir.Class][]string)
	c.Results = make(map[ir.Class]*AllocationResult)
	for _, class := range []ir.Class{ir.Narrow, ir.Wide} {
		rc := c.Target.Class(class)
		g := c.Graphs[class]

		loopVars := NewVarSet()
		for v := range c.Live.Induction {
			if g.Nodes.Contains(v) {
				loopVars.Add(v)
			}
		}

		pool := callconv.PoolFor(c.Meta, rc, len(loopVars) > 0)
		c.Pools[class] = pool

		a := NewAllocator(g, pool, c.DeclOrder(), c.Sink)
		a.LoopPool = rc.Loop
		a.LoopVars = loopVars
		a.Skip = stackParams
		for v, reg := range seeds {
			if g.Nodes.Contains(v) {
				a.Seeds[v] = reg
			}
		}
		c.Results[class] = a.Allocate()
	}
}

// paramVars returns the parameters with their resolved classes
func (c *Context) paramVars() []ir.Var {
	params := make([]ir.Var, 0, len(c.Fn.Params))
	for _, p := range c.Fn.Params {
		v, _ := c.Var(p.Name)
		params = append(params, v)
	}
	return params
}

// seeds returns the conventional registers of register-passed parameters
// and call results, and the set of stack-passed parameters.
func (c *Context) seeds() (map[string]string, VarSet) {
	seeds := make(map[string]string)
	stack := NewVarSet()
	for _, b := range c.Params {
		if b.Reg != "" {
			seeds[b.Var.Name] = b.Reg
		} else {
			stack.Add(b.Var.Name)
		}
	}
	for _, blk := range c.Fn.Blocks {
		for _, in := range blk.Instrs {
			if !in.IsCall() || in.Result == "" {
				continue
			}
			if _, pinned := seeds[in.Result]; pinned || stack.Contains(in.Result) {
				continue
			}
			v, _ := c.Var(in.Result)
			if ret := c.Target.Class(v.Class).Return; ret != "" {
				seeds[in.Result] = ret
			}
		}
	}
	return seeds, stack
}

// Reg returns the register assigned to a variable, if any
func (c *Context) Reg(name string) (string, bool) {
	v, ok := c.Var(name)
	if !ok || c.Results == nil {
		return "", false
	}
	reg, ok := c.Results[v.Class].Regs[name]
	return reg, ok
}

// Spilled returns every spilled variable of the function in discovery order
func (c *Context) Spilled() []string {
	var out []string
	for _, v := range c.Vars {
		if r := c.Results[v.Class]; r != nil && r.Spilled.Contains(v.Name) {
			out = append(out, v.Name)
		}
	}
	return out
}
