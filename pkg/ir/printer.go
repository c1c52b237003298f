package ir

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs the IR in the same line syntax ParseInstr accepts
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintModule prints every function of the module
func (p *Printer) PrintModule(m *Module) {
	for i, fn := range m.Functions {
		p.PrintFunction(fn)
		if i < len(m.Functions)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

// PrintFunction prints a function header, its declarations and its blocks
func (p *Printer) PrintFunction(fn *Function) {
	if fn.Entry {
		fmt.Fprint(p.w, "entry ")
	}
	fmt.Fprintf(p.w, "%s(", fn.Name)
	for i, v := range fn.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s: %s", v.Name, v.Class)
	}
	fmt.Fprintln(p.w, ") {")

	for _, d := range fn.Decls {
		fmt.Fprintf(p.w, "  var %s: %s %s\n", d.Name, d.Class, d.Kind)
	}

	for _, b := range fn.Blocks {
		if b.Role != RoleNone {
			fmt.Fprintf(p.w, "%s: ; %s\n", b.Label, b.Role)
		} else {
			fmt.Fprintf(p.w, "%s:\n", b.Label)
		}
		for _, in := range b.Instrs {
			fmt.Fprintf(p.w, "  %s\n", FormatInstr(in))
		}
	}
	fmt.Fprintln(p.w, "}")
}

// FormatInstr renders an instruction in line syntax
func FormatInstr(in Instr) string {
	var sb strings.Builder
	if in.Result != "" {
		sb.WriteString(in.Result)
		sb.WriteString(" = ")
	}
	sb.WriteString(string(in.Op))
	for i, a := range in.Args {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(FormatOperand(a))
	}
	return sb.String()
}

// FormatOperand renders a single operand
func FormatOperand(o Operand) string {
	switch a := o.(type) {
	case VarRef:
		return a.Name
	case Imm:
		return fmt.Sprintf("%d", a.Value)
	case Sym:
		return "@" + a.Name
	}
	return "?"
}
