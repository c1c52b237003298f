// Package asm defines the R8/16 assembly representation: the final output
// of the allocator, with every variable replaced by a concrete operand.
package asm

import "fmt"

// Operand is an instruction operand
type Operand interface {
	implOperand()
	String() string
}

// Reg is a physical register
type Reg struct {
	Name string
}

// Mem is a base-relative memory access: [fp-3], [fp+4]
type Mem struct {
	Base string
	Ofs  int
}

// Abs is an absolute memory access: [0xe000]
type Abs struct {
	Addr int
}

// Imm is an immediate
type Imm struct {
	Value int64
}

// Label is a code label or function symbol
type Label struct {
	Name string
}

func (Reg) implOperand()   {}
func (Mem) implOperand()   {}
func (Abs) implOperand()   {}
func (Imm) implOperand()   {}
func (Label) implOperand() {}

func (r Reg) String() string { return r.Name }

func (m Mem) String() string {
	switch {
	case m.Ofs < 0:
		return fmt.Sprintf("[%s-%d]", m.Base, -m.Ofs)
	case m.Ofs > 0:
		return fmt.Sprintf("[%s+%d]", m.Base, m.Ofs)
	}
	return fmt.Sprintf("[%s]", m.Base)
}

func (a Abs) String() string   { return fmt.Sprintf("[0x%04x]", a.Addr) }
func (i Imm) String() string   { return fmt.Sprintf("#%d", i.Value) }
func (l Label) String() string { return l.Name }

// Instr is one assembly instruction, or a label definition when Op is
// empty and LabelDef is set.
type Instr struct {
	Op       string
	Args     []Operand
	LabelDef string
	Comment  string
}

// Function is an emitted function
type Function struct {
	Name string
	// FrameBytes is the spill area reserved below FP
	FrameBytes int
	Code       []Instr
}

// Program is a full emitted module
type Program struct {
	Functions []Function
	// StaticBase and StaticUsed describe the static spill area in use
	StaticBase int
	StaticUsed int
}

// Append adds an instruction
func (f *Function) Append(op string, args ...Operand) {
	f.Code = append(f.Code, Instr{Op: op, Args: args})
}

// Label adds a label definition
func (f *Function) Label(name string) {
	f.Code = append(f.Code, Instr{LabelDef: name})
}
