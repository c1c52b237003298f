// Package asmgen rewrites an allocated IR function into R8/16 assembly.
// Every variable operand goes through the function's resolver; calls,
// returns and parameter arrival follow the calling convention.
package asmgen

import (
	"fmt"
	"slices"

	"github.com/raymyers/ralph-ra/pkg/asm"
	"github.com/raymyers/ralph-ra/pkg/callconv"
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/loc"
	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"github.com/raymyers/ralph-ra/pkg/resolve"
	"github.com/raymyers/ralph-ra/pkg/stacking"
	"github.com/raymyers/ralph-ra/pkg/target"
	"tlog.app/go/errors"
)

// epilogueOp marks where the epilogue is spliced in once the frame is known
const epilogueOp = "<epilogue>"

// CalleeLookup returns the parameters of a called function, if known
type CalleeLookup func(name string) ([]ir.Var, bool)

// genContext holds state during code generation of one function
type genContext struct {
	fn      *ir.Function
	ctx     *regalloc.Context
	res     *resolve.Resolver
	frame   *stacking.Frame
	t       *target.Target
	callees CalleeLookup

	labels   map[string]bool
	code     []asm.Instr
	litCount int
}

// TransformFunction emits one allocated function. frame must be the frame
// the resolver allocates from.
func TransformFunction(ctx *regalloc.Context, res *resolve.Resolver, frame *stacking.Frame, callees CalleeLookup) (*asm.Function, error) {
	g := &genContext{
		fn:      ctx.Fn,
		ctx:     ctx,
		res:     res,
		frame:   frame,
		t:       ctx.Target,
		callees: callees,
		labels:  make(map[string]bool),
	}
	for _, b := range g.fn.Blocks {
		g.labels[b.Label] = true
	}

	if err := g.entryMoves(); err != nil {
		return nil, err
	}
	for _, b := range g.fn.Blocks {
		g.code = append(g.code, asm.Instr{LabelDef: g.blockLabel(b.Label)})
		for _, in := range b.Instrs {
			if err := g.translateInstruction(in); err != nil {
				return nil, errors.Wrap(err, "block %v: %v", b.Label, ir.FormatInstr(in))
			}
		}
	}
	if n := len(g.code); n == 0 || !endsFlow(g.code[n-1]) {
		g.code = append(g.code, asm.Instr{Op: epilogueOp})
	}

	// The frame is final only now: late allocations may have grown it.
	layout := stacking.ComputeLayout(frame, res.Locations(), g.t, g.fn.Entry)
	out := &asm.Function{Name: g.fn.Name, FrameBytes: layout.LocalSize}
	out.Code = append(out.Code, stacking.GeneratePrologue(layout, g.t)...)
	for _, in := range g.code {
		if in.Op == epilogueOp {
			out.Code = append(out.Code, stacking.GenerateEpilogue(layout, g.t)...)
			continue
		}
		out.Code = append(out.Code, in)
	}
	return out, nil
}

func endsFlow(in asm.Instr) bool {
	return in.Op == epilogueOp || in.Op == string(ir.OpJmp)
}

// blockLabel makes block labels unique across the module
func (g *genContext) blockLabel(label string) string {
	return fmt.Sprintf(".L%s.%s", g.fn.Name, label)
}

// entryMoves copies register parameters that did not keep their arrival
// register to wherever they were allocated.
func (g *genContext) entryMoves() error {
	var moves []move
	for _, b := range g.ctx.Params {
		if b.Reg == "" {
			continue
		}
		l, err := g.res.Resolve(b.Var.Name)
		if err != nil {
			return err
		}
		v, _ := g.ctx.Var(b.Var.Name)
		moves = append(moves, move{src: asm.Reg{Name: b.Reg}, dst: operand(l, g.t), class: v.Class})
	}
	g.code = append(g.code, resolveParallelMoves(moves, g.scratch)...)
	return nil
}

func (g *genContext) scratch(c ir.Class) asm.Reg {
	return asm.Reg{Name: g.t.Class(c).Scratch}
}

func (g *genContext) translateInstruction(in ir.Instr) error {
	switch in.Op {
	case ir.OpCall:
		return g.translateCall(in)
	case ir.OpRet:
		return g.translateReturn(in)
	case ir.OpCmp:
		if len(in.Args) > 0 {
			if imm, ok := in.Args[0].(ir.Imm); ok {
				// cmp needs its first operand in a register or memory
				tmp, err := g.materialize(imm)
				if err != nil {
					return err
				}
				args := append([]ir.Operand{ir.VarRef{Name: tmp}}, in.Args[1:]...)
				in = ir.Instr{Op: in.Op, Args: args, Result: in.Result}
			}
		}
	}

	var ops []asm.Operand
	if in.Result != "" {
		dst, err := g.variable(in.Result)
		if err != nil {
			return err
		}
		ops = append(ops, dst)
	}
	for _, a := range in.Args {
		op, err := g.operand(a)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	g.code = append(g.code, asm.Instr{Op: string(in.Op), Args: ops})
	return nil
}

// materialize loads an immediate into a fresh temporary created after the
// main allocation pass; the resolver gives it a location on first use.
func (g *genContext) materialize(imm ir.Imm) (string, error) {
	g.litCount++
	class := ir.Wide
	if imm.Value >= -128 && imm.Value <= 255 {
		class = ir.Narrow
	}
	name := fmt.Sprintf("%s.lit%d", g.fn.Name, g.litCount)
	g.res.Declare(ir.Var{Name: name, Class: class, Kind: ir.Temp})

	dst, err := g.variable(name)
	if err != nil {
		return "", err
	}
	g.code = append(g.code, asm.Instr{Op: "mov", Args: []asm.Operand{dst, asm.Imm{Value: imm.Value}}})
	return name, nil
}

func (g *genContext) variable(name string) (asm.Operand, error) {
	l, err := g.res.Resolve(name)
	if err != nil {
		return nil, err
	}
	return operand(l, g.t), nil
}

func (g *genContext) operand(o ir.Operand) (asm.Operand, error) {
	switch a := o.(type) {
	case ir.VarRef:
		return g.variable(a.Name)
	case ir.Imm:
		return asm.Imm{Value: a.Value}, nil
	case ir.Sym:
		if g.labels[a.Name] {
			return asm.Label{Name: g.blockLabel(a.Name)}, nil
		}
		return asm.Label{Name: a.Name}, nil
	}
	return nil, errors.New("unsupported operand %T", o)
}

// classOf returns the register class of an operand; immediates travel Wide
func (g *genContext) classOf(o ir.Operand) ir.Class {
	if ref, ok := o.(ir.VarRef); ok {
		if v, ok := g.ctx.Var(ref.Name); ok {
			return v.Class
		}
	}
	return ir.Wide
}

// translateCall emits:
//
//	push <live caller-saved>      registers other variables hold
//	push <stack args>             last first
//	mov  <param regs>, <args>     as one parallel move
//	call f
//	add  sp, #<stack arg bytes>
//	mov  <result>, <return reg>
//	pop  <saved>
func (g *genContext) translateCall(in ir.Instr) error {
	if len(in.Args) == 0 {
		return errors.New("call without target")
	}
	callee, err := g.operand(in.Args[0])
	if err != nil {
		return err
	}
	args := in.Args[1:]

	var formals []ir.Var
	known := false
	if sym, ok := in.Args[0].(ir.Sym); ok && g.callees != nil {
		formals, known = g.callees(sym.Name)
	}
	if !known || len(formals) != len(args) {
		formals = make([]ir.Var, len(args))
		for i, a := range args {
			formals[i] = ir.Var{Name: fmt.Sprintf("arg%d", i), Class: g.classOf(a), Kind: ir.Param}
		}
	}
	bindings := callconv.ParamBindings(formals, g.t)

	var resultLoc loc.Loc
	var resultClass ir.Class
	if in.Result != "" {
		if resultLoc, err = g.res.Resolve(in.Result); err != nil {
			return err
		}
		v, _ := g.ctx.Var(in.Result)
		resultClass = v.Class
	}

	saved := g.liveCallerSaved(resultLoc)
	for _, r := range saved {
		g.code = append(g.code, asm.Instr{Op: "push", Args: []asm.Operand{asm.Reg{Name: r}}})
	}

	stackBytes := 0
	for i := len(bindings) - 1; i >= 0; i-- {
		if bindings[i].Reg != "" {
			continue
		}
		src, err := g.operand(args[i])
		if err != nil {
			return err
		}
		g.code = append(g.code, asm.Instr{Op: "push", Args: []asm.Operand{src}})
		stackBytes += bindings[i].Var.Class.Size()
	}

	var moves []move
	for i, b := range bindings {
		if b.Reg == "" {
			continue
		}
		src, err := g.operand(args[i])
		if err != nil {
			return err
		}
		moves = append(moves, move{src: src, dst: asm.Reg{Name: b.Reg}, class: b.Var.Class})
	}
	seq := resolveParallelMoves(moves, g.scratch)
	if reg, ok := callee.(asm.Reg); ok && writesReg(seq, reg) {
		// The argument moves overwrite the call target: call through
		// scratch, parking the target on the stack if the moves need
		// scratch themselves.
		tmp := g.scratch(g.regClass(reg.Name))
		if usesReg(seq, tmp) {
			g.code = append(g.code, asm.Instr{Op: "push", Args: []asm.Operand{reg}})
			seq = append(seq, asm.Instr{Op: "pop", Args: []asm.Operand{tmp}})
		} else {
			g.code = append(g.code, asm.Instr{Op: "mov", Args: []asm.Operand{tmp, reg}})
		}
		callee = tmp
	}
	g.code = append(g.code, seq...)

	g.code = append(g.code, asm.Instr{Op: "call", Args: []asm.Operand{callee}})
	if stackBytes > 0 {
		g.code = append(g.code, asm.Instr{
			Op:   "add",
			Args: []asm.Operand{asm.Reg{Name: g.t.SP}, asm.Imm{Value: int64(stackBytes)}},
		})
	}

	if resultLoc != nil {
		ret := asm.Reg{Name: g.t.Class(resultClass).Return}
		if dst := operand(resultLoc, g.t); dst != ret {
			g.code = append(g.code, asm.Instr{Op: "mov", Args: []asm.Operand{dst, ret}})
		}
	}

	for i := len(saved) - 1; i >= 0; i-- {
		g.code = append(g.code, asm.Instr{Op: "pop", Args: []asm.Operand{asm.Reg{Name: saved[i]}}})
	}
	return nil
}

// regClass returns the class a physical register belongs to
func (g *genContext) regClass(reg string) ir.Class {
	if rc := g.t.Class(ir.Narrow); rc.Owns(reg) || slices.Contains(rc.Reserved, reg) {
		return ir.Narrow
	}
	return ir.Wide
}

func writesReg(code []asm.Instr, reg asm.Reg) bool {
	for _, in := range code {
		if len(in.Args) > 0 && in.Args[0] == asm.Operand(reg) {
			return true
		}
	}
	return false
}

func usesReg(code []asm.Instr, reg asm.Reg) bool {
	for _, in := range code {
		if slices.Contains(in.Args, asm.Operand(reg)) {
			return true
		}
	}
	return false
}

// liveCallerSaved returns the caller-saved registers bound to variables of
// the function, except the one receiving the call result.
func (g *genContext) liveCallerSaved(result loc.Loc) []string {
	held := make(map[string]bool)
	for _, l := range g.res.Locations() {
		if reg, ok := loc.IsReg(l); ok {
			held[reg] = true
		}
	}
	if reg, ok := loc.IsReg(result); ok {
		delete(held, reg)
	}

	var saved []string
	for _, c := range []ir.Class{ir.Narrow, ir.Wide} {
		for _, r := range g.t.Class(c).CallerSaved {
			if held[r] {
				saved = append(saved, r)
			}
		}
	}
	return saved
}

func (g *genContext) translateReturn(in ir.Instr) error {
	if len(in.Args) > 0 {
		src, err := g.operand(in.Args[0])
		if err != nil {
			return err
		}
		ret := asm.Reg{Name: g.t.Class(g.classOf(in.Args[0])).Return}
		if src != ret {
			g.code = append(g.code, asm.Instr{Op: "mov", Args: []asm.Operand{ret, src}})
		}
	}
	g.code = append(g.code, asm.Instr{Op: epilogueOp})
	return nil
}

// operand converts a location to an assembly operand
func operand(l loc.Loc, t *target.Target) asm.Operand {
	switch x := l.(type) {
	case loc.R:
		return asm.Reg{Name: x.Reg}
	case loc.S:
		return asm.Mem{Base: t.FP, Ofs: x.Ofs}
	case loc.A:
		return asm.Abs{Addr: x.Addr}
	}
	return nil
}
