// Package compile drives register allocation over a whole module:
// calling-convention analysis, then per function liveness, coloring,
// spill placement, emission and late resolution.
package compile

import (
	"github.com/raymyers/ralph-ra/pkg/asm"
	"github.com/raymyers/ralph-ra/pkg/asmgen"
	"github.com/raymyers/ralph-ra/pkg/callconv"
	"github.com/raymyers/ralph-ra/pkg/diag"
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"github.com/raymyers/ralph-ra/pkg/resolve"
	"github.com/raymyers/ralph-ra/pkg/stacking"
	"github.com/raymyers/ralph-ra/pkg/target"
	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// Options configures a compilation
type Options struct {
	// Target defaults to target.Default()
	Target *target.Target
	// Mode forces an interference mode for every function
	Mode regalloc.Mode
	// Jobs > 1 allocates functions concurrently. Static addresses are then
	// handed out in completion order rather than declaration order.
	Jobs int
	// Logger receives diagnostics and per-function summaries; may be nil
	Logger *tlog.Logger
	// Static overrides the static spill pool built from Target
	Static *stacking.StaticPool
}

// FunctionResult is the compilation record of one function
type FunctionResult struct {
	Name     string
	Mode     regalloc.Mode
	Ordering callconv.Ordering
	Context  *regalloc.Context
	// Locations binds every variable, including late ones
	Locations     stacking.Locations
	MaxFrameBytes int
	// Emergency lists variables the resolution pass had to allocate
	Emergency   []string
	Diagnostics []diag.Diagnostic
	Asm         *asm.Function
}

// Result is the compilation record of a module
type Result struct {
	Functions []*FunctionResult
	Program   *asm.Program
	Static    *stacking.StaticPool
}

// Warnings returns every warning-or-worse diagnostic in function order
func (r *Result) Warnings() []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, f := range r.Functions {
		for _, d := range f.Diagnostics {
			if d.Kind.Severity() >= diag.Warning {
				out = append(out, d)
			}
		}
	}
	return out
}

// Function returns the record of the named function, or nil
func (r *Result) Function(name string) *FunctionResult {
	for _, f := range r.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Module compiles every function of m. Only static spill exhaustion (or a
// malformed target) makes it fail.
func Module(m *ir.Module, opts Options) (*Result, error) {
	if opts.Target == nil {
		opts.Target = target.Default()
	}
	if err := opts.Target.Validate(); err != nil {
		return nil, err
	}
	static := opts.Static
	if static == nil {
		static = stacking.NewStaticPool(opts.Target.StaticBase, opts.Target.StaticSize)
	}

	info := callconv.Analyze(m)
	callees := func(name string) ([]ir.Var, bool) {
		if fn := m.FindFunction(name); fn != nil {
			return fn.Params, true
		}
		return nil, false
	}

	results := make([]*FunctionResult, len(m.Functions))
	compileAt := func(i int) error {
		fn := m.Functions[i]
		fr, err := Function(fn, info.Meta(fn), static, callees, opts)
		if err != nil {
			return errors.Wrap(err, "function %v", fn.Name)
		}
		results[i] = fr
		return nil
	}

	if opts.Jobs > 1 {
		var g errgroup.Group
		g.SetLimit(opts.Jobs)
		for i := range m.Functions {
			i := i
			g.Go(func() error { return compileAt(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range m.Functions {
			if err := compileAt(i); err != nil {
				return nil, err
			}
		}
	}

	prog := &asm.Program{StaticBase: static.Base(), StaticUsed: static.Used()}
	for _, fr := range results {
		prog.Functions = append(prog.Functions, *fr.Asm)
	}
	return &Result{Functions: results, Program: prog, Static: static}, nil
}

// Function compiles a single function. All per-function state is created
// here; only static is shared with other functions.
func Function(fn *ir.Function, meta callconv.FunctionMeta, static *stacking.StaticPool, callees asmgen.CalleeLookup, opts Options) (*FunctionResult, error) {
	t := opts.Target
	if t == nil {
		t = target.Default()
	}
	sink := diag.NewSink(fn.Name, opts.Logger)

	ctx := regalloc.NewContext(fn, meta, t, sink)
	ctx.Force = opts.Mode
	ctx.Allocate()

	frame := stacking.NewFrame(t.FrameLimit, static)
	locs, err := stacking.Locate(ctx, frame)
	if err != nil {
		sink.Report(diag.SpillExhaustion, "", "%v", err)
		return nil, err
	}

	res := resolve.New(ctx, frame, locs)
	out, err := asmgen.TransformFunction(ctx, res, frame, callees)
	if err != nil {
		if errors.Is(err, stacking.ErrSpillExhaustion) {
			sink.Report(diag.SpillExhaustion, "", "%v", err)
		}
		return nil, err
	}

	fr := &FunctionResult{
		Name:          fn.Name,
		Mode:          ctx.Live.Mode,
		Ordering:      callconv.OrderingFor(meta),
		Context:       ctx,
		Locations:     res.Locations(),
		MaxFrameBytes: res.MaxFrameBytes(),
		Emergency:     res.Emergency,
		Diagnostics:   sink.All(),
		Asm:           out,
	}
	if opts.Logger != nil {
		opts.Logger.Printw("allocated",
			"function", fn.Name,
			"mode", fr.Mode.String(),
			"ordering", fr.Ordering.String(),
			"spilled", len(ctx.Spilled()),
			"frame_bytes", fr.MaxFrameBytes)
	}
	return fr, nil
}
