package regalloc

import (
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/raymyers/ralph-ra/pkg/callconv"
	"github.com/raymyers/ralph-ra/pkg/diag"
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/target"
)

// newTestContext builds the context of fn as if it were the only function
// of its module.
func newTestContext(fn *ir.Function, tgt *target.Target) *Context {
	if tgt == nil {
		tgt = target.Default()
	}
	info := callconv.Analyze(&ir.Module{Functions: []*ir.Function{fn}})
	return NewContext(fn, info.Meta(fn), tgt, nil)
}

func allocate(fn *ir.Function) *Context {
	ctx := newTestContext(fn, nil)
	ctx.Allocate()
	return ctx
}

// checkColoring verifies that no two interfering variables share a register,
// that every node is either colored or spilled, never both, and that only
// registers of the class pool or its loop sub-pool are used.
func checkColoring(t *testing.T, ctx *Context) {
	t.Helper()
	for class, g := range ctx.Graphs {
		res := ctx.Results[class]
		loop := ctx.Target.Class(class).Loop
		for _, v := range g.Order() {
			rv, colored := res.Regs[v]
			if colored && res.Spilled.Contains(v) {
				t.Errorf("%s is both colored and spilled", v)
			}
			if colored && !slices.Contains(ctx.Pools[class], rv) && !slices.Contains(loop, rv) {
				t.Errorf("%s got %s, outside the %v pool %v", v, rv, class, ctx.Pools[class])
			}
			for n := range g.Edges[v] {
				if rv, ok := res.Regs[v]; ok && rv == res.Regs[n] {
					t.Errorf("interfering %s and %s share %s", v, n, rv)
				}
			}
		}
	}
}

func TestThreeWideParamsTakeParamRegisters(t *testing.T) {
	b := ir.NewBuilder("f")
	for _, p := range []string{"p0", "p1", "p2"} {
		b.Param(p, ir.Wide)
	}
	b.Block("entry").Emit(ir.OpRet, "", ir.V("p0"))
	ctx := allocate(b.Function())

	want := map[string]string{"p0": "w0", "p1": "w1", "p2": "w2"}
	for v, reg := range want {
		if got, _ := ctx.Reg(v); got != reg {
			t.Errorf("%s in %q, want %s", v, got, reg)
		}
	}
	checkColoring(t, ctx)
}

func TestInductionVariableUsesLoopPool(t *testing.T) {
	ctx := allocate(countingLoop("loop"))

	reg, ok := ctx.Reg("i")
	if !ok {
		t.Fatal("induction variable i must not be spilled")
	}
	loop := ctx.Target.Narrow.Loop
	if reg != loop[0] && reg != loop[1] {
		t.Errorf("i in %s, want one of %v", reg, loop)
	}
	for _, r := range ctx.Pools[ir.Narrow] {
		if r == reg {
			t.Errorf("loop register %s must not be in the general pool while reserved", reg)
		}
	}
	checkColoring(t, ctx)
}

func TestInductionVariableFallsBackToGeneralPool(t *testing.T) {
	// Three counters, two loop registers: the least constrained one is
	// colored from the general pool instead.
	b := ir.NewBuilder("loops")
	names := []string{"i", "j", "k"}
	b.Block("entry")
	for _, n := range names {
		b.Emit(ir.OpMov, b.Local(n, ir.Narrow), ir.I(0))
	}
	b.Block("for_header")
	for _, n := range names {
		b.Emit(ir.OpCmp, "", ir.V(n), ir.I(4))
	}
	b.Block("for_inc")
	for _, n := range names {
		b.Emit(ir.OpInc, "", ir.V(n))
	}
	ctx := allocate(b.Function())

	inLoop := 0
	for _, n := range names {
		reg, ok := ctx.Reg(n)
		if !ok {
			t.Errorf("%s spilled", n)
			continue
		}
		if ctx.Target.Narrow.Owns(reg) && slices.Contains(ctx.Target.Narrow.Loop, reg) {
			inLoop++
		}
	}
	if inLoop != 2 {
		t.Errorf("%d counters in loop registers, want 2", inLoop)
	}
	checkColoring(t, ctx)
}

func TestEightLiveNarrowWithSixRegisters(t *testing.T) {
	b := ir.NewBuilder("f")
	var vars []ir.Operand
	b.Block("entry")
	for k := 0; k < 8; k++ {
		v := b.Local(fmt.Sprintf("v%d", k), ir.Narrow)
		b.Emit(ir.OpMov, v, ir.I(int64(k)))
		vars = append(vars, ir.V(v))
	}
	b.Emit(ir.OpStore, "", vars...)
	ctx := allocate(b.Function())

	if n := len(ctx.Pools[ir.Narrow]); n != 6 {
		t.Fatalf("narrow pool has %d registers, want 6", n)
	}
	spilled := ctx.Results[ir.Narrow].Spilled
	if len(spilled) != 2 {
		t.Fatalf("spilled %v, want exactly 2", spilled.Sorted())
	}
	// Equal tier and degree: declaration order decides.
	if !spilled.Equal(NewVarSet("v6", "v7")) {
		t.Errorf("spilled %v, want [v6 v7]", spilled.Sorted())
	}
	checkColoring(t, ctx)
}

func TestPriorityOrder(t *testing.T) {
	b := ir.NewBuilder("f")
	p := b.Param("p", ir.Narrow)
	tmp := b.Temp("tmp", ir.Narrow)
	lo := b.Local("lo", ir.Narrow)
	hi := b.Local("hi", ir.Narrow)
	other := b.Local("other", ir.Narrow)
	x := b.Local("x", ir.Narrow)
	b.Block("one").
		Emit(ir.OpMov, tmp, ir.I(1)).
		Emit(ir.OpMov, lo, ir.I(2))
	b.Block("two").
		Emit(ir.OpAdd, hi, ir.V(p), ir.V(other)).
		Emit(ir.OpMov, other, ir.I(5)).
		Emit(ir.OpMov, x, ir.I(6))
	fn := b.Function()

	ctx := newTestContext(fn, nil)
	live := AnalyzeLiveness(fn, DefaultThreshold, ModeExact)
	g := BuildInterferenceGraphs(fn, ctx.Vars, live)[ir.Narrow]
	a := NewAllocator(g, ctx.Target.Narrow.General(), ctx.DeclOrder(), nil)

	// Parameter first, then locals by degree (hi, other and x have three
	// neighbors, lo two), declaration order on ties, temporaries last.
	got := a.PriorityOrder()
	want := []string{"p", "hi", "other", "x", "lo", "tmp"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PriorityOrder() = %v, want %v", got, want)
	}
}

func TestTiesFollowDeclarationOrder(t *testing.T) {
	// b is referenced before a but declared after it; with one register
	// left for two equal locals, a wins.
	b := ir.NewBuilder("f")
	a := b.Local("a", ir.Narrow)
	bv := b.Local("b", ir.Narrow)
	b.Block("entry").
		Emit(ir.OpMov, bv, ir.I(1)).
		Emit(ir.OpMov, a, ir.I(2))
	fn := b.Function()

	ctx := newTestContext(fn, nil)
	if ctx.Vars[0].Name != "b" {
		t.Fatalf("discovery order = %v, want b first", ctx.Vars)
	}
	if got := ctx.DeclOrder(); got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("DeclOrder() = %v, want [a b]", got)
	}

	live := AnalyzeLiveness(fn, DefaultThreshold, ModeExact)
	g := BuildInterferenceGraphs(fn, ctx.Vars, live)[ir.Narrow]
	res := NewAllocator(g, []string{"r4"}, ctx.DeclOrder(), nil).Allocate()
	if res.Regs["a"] != "r4" {
		t.Errorf("a = %q, want r4", res.Regs["a"])
	}
	if !res.Spilled.Equal(NewVarSet("b")) {
		t.Errorf("spilled %v, want [b]", res.Spilled.Sorted())
	}
}

func TestSeededClashIsHealed(t *testing.T) {
	// p arrives in w0 and r receives the call result in w0; both are live
	// in the same block, so one of them must give up the register.
	b := ir.NewBuilder("f")
	p := b.Param("p", ir.Wide)
	r := b.Local("r", ir.Wide)
	s := b.Local("s", ir.Wide)
	b.Block("entry").
		Emit(ir.OpCall, r, ir.S("g")).
		Emit(ir.OpAdd, s, ir.V(p), ir.V(r)).
		Emit(ir.OpRet, "", ir.V(s))
	fn := b.Function()

	ctx := newTestContext(fn, nil)
	ctx.Allocate()

	if reg, _ := ctx.Reg("p"); reg != "w0" {
		t.Errorf("parameter p should keep w0, got %q", reg)
	}
	res := ctx.Results[ir.Wide]
	if !res.Spilled.Contains("r") {
		t.Errorf("r should be spilled by the heal pass, regs=%v", res.Regs)
	}
	if !reflect.DeepEqual(res.Healed, []string{"r"}) {
		t.Errorf("Healed = %v, want [r]", res.Healed)
	}
	if n := ctx.Sink.Count(diag.AllocationConflict); n != 1 {
		t.Errorf("expected 1 allocation conflict, got %d", n)
	}
	checkColoring(t, ctx)
}

func TestStackParamsSkipColoring(t *testing.T) {
	b := ir.NewBuilder("f")
	var last string
	for k := 0; k < 5; k++ {
		last = b.Param(fmt.Sprintf("p%d", k), ir.Narrow)
	}
	b.Block("entry").Emit(ir.OpRet, "", ir.V(last))
	ctx := allocate(b.Function())

	if _, ok := ctx.Reg("p4"); ok {
		t.Error("fifth narrow parameter arrives on the stack and must not be colored")
	}
	if ctx.Results[ir.Narrow].Spilled.Contains("p4") {
		t.Error("stack parameter is not a spill")
	}
	if ctx.Params[4].Reg != "" || ctx.Params[4].Ofs != callconv.IncomingBase {
		t.Errorf("p4 binding = %+v", ctx.Params[4])
	}
}

func TestUnknownClassDefaultsToWide(t *testing.T) {
	b := ir.NewBuilder("f")
	b.Block("entry").
		Emit(ir.OpMov, "x", ir.I(1)).
		Emit(ir.OpRet, "", ir.V("x"))
	ctx := allocate(b.Function())

	v, ok := ctx.Var("x")
	if !ok || v.Class != ir.Wide || v.Kind != ir.Temp {
		t.Errorf("x = %+v, want wide temp", v)
	}
	if ctx.Sink.Count(diag.InvalidRegisterClass) != 1 {
		t.Error("expected an invalid register class warning")
	}
	if !ctx.Graphs[ir.Wide].Nodes.Contains("x") {
		t.Error("x should be a node of the wide graph")
	}
}

func TestAllocationIsDeterministic(t *testing.T) {
	build := func() *ir.Function {
		b := ir.NewBuilder("f")
		b.Param("a", ir.Narrow)
		b.Param("w", ir.Wide)
		b.Block("entry")
		for k := 0; k < 10; k++ {
			b.Emit(ir.OpAdd, b.Local(fmt.Sprintf("n%d", k), ir.Narrow), ir.V("a"), ir.I(int64(k)))
			b.Emit(ir.OpAdd, b.Local(fmt.Sprintf("m%d", k), ir.Wide), ir.V("w"), ir.I(int64(k)))
		}
		b.Emit(ir.OpCall, "r", ir.S("g"), ir.V("n0"))
		return b.Function()
	}

	first := allocate(build())
	for run := 0; run < 5; run++ {
		again := allocate(build())
		for _, class := range []ir.Class{ir.Narrow, ir.Wide} {
			if !reflect.DeepEqual(first.Results[class].Regs, again.Results[class].Regs) {
				t.Fatalf("run %d: %v registers differ", run, class)
			}
			if !first.Results[class].Spilled.Equal(again.Results[class].Spilled) {
				t.Fatalf("run %d: %v spills differ", run, class)
			}
		}
	}
}
