package regalloc

import (
	"fmt"
	"testing"

	"github.com/raymyers/ralph-ra/pkg/ir"
)

func TestBlockRoleOf(t *testing.T) {
	tests := []struct {
		label string
		role  ir.BlockRole
		want  ir.BlockRole
	}{
		{"entry", ir.RoleNone, ir.RoleNone},
		{"for_header_2", ir.RoleNone, ir.RoleHeader},
		{"while.cond", ir.RoleNone, ir.RoleHeader},
		{"loop_inc", ir.RoleNone, ir.RoleIncrement},
		{"for_step3", ir.RoleNone, ir.RoleIncrement},
		{"while_body", ir.RoleNone, ir.RoleBody},
		{"do.latch", ir.RoleNone, ir.RoleIncrement},
		{"incoming", ir.RoleNone, ir.RoleNone},
		{"if_cond", ir.RoleNone, ir.RoleNone},
		{"if_body", ir.RoleNone, ir.RoleNone},
		{"header", ir.RoleNone, ir.RoleNone},
		{"entry", ir.RoleHeader, ir.RoleHeader},
	}

	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			got := BlockRoleOf(ir.Block{Label: tc.label, Role: tc.role})
			if got != tc.want {
				t.Errorf("BlockRoleOf(%q) = %v, want %v", tc.label, got, tc.want)
			}
		})
	}
}

func TestAnalyzeLivenessSimple(t *testing.T) {
	b := ir.NewBuilder("f")
	x := b.Local("x", ir.Narrow)
	y := b.Local("y", ir.Narrow)
	b.Block("entry").
		Emit(ir.OpMov, x, ir.I(1)).
		Emit(ir.OpAdd, y, ir.V(x), ir.I(2))
	b.Block("exit").
		Emit(ir.OpRet, "", ir.V(y))

	live := AnalyzeLiveness(b.Function(), DefaultThreshold, ModeAuto)

	if live.Mode != ModeExact {
		t.Errorf("expected exact mode, got %v", live.Mode)
	}
	if live.HasLoop {
		t.Error("function has no loop")
	}
	if !live.Refs[0].Equal(NewVarSet("x", "y")) {
		t.Errorf("block 0 refs = %v", live.Refs[0].Sorted())
	}
	if !live.MultiBlock.Equal(NewVarSet("y")) {
		t.Errorf("multi-block vars = %v", live.MultiBlock.Sorted())
	}
	if live.FirstBlock["y"] != 0 || live.LastBlock["y"] != 1 {
		t.Errorf("y spans %d..%d, want 0..1", live.FirstBlock["y"], live.LastBlock["y"])
	}
	if live.NumVars != 2 {
		t.Errorf("NumVars = %d, want 2", live.NumVars)
	}
}

func TestAnalyzeLivenessWithLoop(t *testing.T) {
	fn := countingLoop("loop")
	live := AnalyzeLiveness(fn, DefaultThreshold, ModeAuto)

	if !live.HasLoop {
		t.Fatal("expected loop to be detected")
	}
	if live.Mode != ModeExact {
		t.Errorf("small loop should stay exact, got %v", live.Mode)
	}
	if !live.Induction.Equal(NewVarSet("i")) {
		t.Errorf("induction vars = %v, want [i]", live.Induction.Sorted())
	}
}

func TestInductionRequiresAdditiveUpdate(t *testing.T) {
	b := ir.NewBuilder("f")
	i := b.Local("i", ir.Narrow)
	b.Block("entry").Emit(ir.OpMov, i, ir.I(1))
	b.LoopBlock("top", ir.RoleHeader).Emit(ir.OpCmp, "", ir.V(i), ir.I(64))
	// i = mul i, 2 is not an additive update
	b.LoopBlock("next", ir.RoleIncrement).Emit(ir.OpMul, i, ir.V(i), ir.I(2))

	live := AnalyzeLiveness(b.Function(), DefaultThreshold, ModeAuto)
	if len(live.Induction) != 0 {
		t.Errorf("expected no induction vars, got %v", live.Induction.Sorted())
	}
}

func TestInductionTwoAddressForm(t *testing.T) {
	b := ir.NewBuilder("f")
	i := b.Local("i", ir.Narrow)
	b.Block("entry").Emit(ir.OpMov, i, ir.I(0))
	b.Block("while_cond").Emit(ir.OpCmp, "", ir.V(i), ir.I(8))
	b.Block("while_latch").Emit(ir.OpInc, "", ir.V(i))

	live := AnalyzeLiveness(b.Function(), DefaultThreshold, ModeAuto)
	if !live.Induction.Contains("i") {
		t.Error("inc i in a latch block should make i an induction variable")
	}
}

func TestModeSelection(t *testing.T) {
	manyVars := func(n int) *ir.Function {
		b := ir.NewBuilder("big")
		b.Block("entry")
		for k := 0; k < n; k++ {
			b.Emit(ir.OpMov, b.Local(fmt.Sprintf("v%d", k), ir.Narrow), ir.I(int64(k)))
		}
		i := b.Local("i", ir.Narrow)
		b.Block("for_header").Emit(ir.OpCmp, "", ir.V(i), ir.I(3))
		b.Block("for_inc").Emit(ir.OpAdd, i, ir.V(i), ir.I(1))
		return b.Function()
	}
	branchy := func(n int) *ir.Function {
		b := ir.NewBuilder("branchy")
		b.Block("entry")
		for k := 0; k < n; k++ {
			b.Emit(ir.OpMov, b.Local(fmt.Sprintf("v%d", k), ir.Narrow), ir.I(int64(k)))
		}
		c := b.Local("c", ir.Narrow)
		b.Block("if_cond").Emit(ir.OpCmp, "", ir.V(c), ir.I(3))
		b.Block("if_body").Emit(ir.OpAdd, c, ir.V(c), ir.I(1))
		return b.Function()
	}

	tests := []struct {
		name  string
		fn    *ir.Function
		force Mode
		want  Mode
	}{
		{"loop at threshold stays exact", manyVars(DefaultThreshold - 1), ModeAuto, ModeExact},
		{"loop above threshold", manyVars(DefaultThreshold), ModeAuto, ModeBlockConservative},
		{"branches above threshold stay exact", branchy(DefaultThreshold), ModeAuto, ModeExact},
		{"forced exact", manyVars(DefaultThreshold), ModeExact, ModeExact},
		{"forced conservative", countingLoop("small"), ModeBlockConservative, ModeBlockConservative},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			live := AnalyzeLiveness(tc.fn, DefaultThreshold, tc.force)
			if live.Mode != tc.want {
				t.Errorf("mode = %v, want %v (vars=%d)", live.Mode, tc.want, live.NumVars)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"", ModeAuto, true},
		{"auto", ModeAuto, true},
		{"exact", ModeExact, true},
		{"Block-Conservative", ModeBlockConservative, true},
		{"conservative", ModeBlockConservative, true},
		{"greedy", ModeAuto, false},
	}
	for _, tc := range tests {
		got, ok := ParseMode(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseMode(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

// countingLoop builds:
//
//	entry:      i = mov 0; s = mov 0
//	for_header: cmp i, 10; br @done
//	for_body:   s = add s, i
//	for_inc:    i = add i, 1; jmp @for_header
//	done:       ret s
func countingLoop(name string) *ir.Function {
	b := ir.NewBuilder(name)
	i := b.Local("i", ir.Narrow)
	s := b.Local("s", ir.Wide)
	b.Block("entry").
		Emit(ir.OpMov, i, ir.I(0)).
		Emit(ir.OpMov, s, ir.I(0))
	b.Block("for_header").
		Emit(ir.OpCmp, "", ir.V(i), ir.I(10)).
		Emit(ir.OpBr, "", ir.S("done"))
	b.Block("for_body").
		Emit(ir.OpAdd, s, ir.V(s), ir.V(i))
	b.Block("for_inc").
		Emit(ir.OpAdd, i, ir.V(i), ir.I(1)).
		Emit(ir.OpJmp, "", ir.S("for_header"))
	b.Block("done").
		Emit(ir.OpRet, "", ir.V(s))
	return b.Function()
}
