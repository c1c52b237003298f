package asm

import (
	"fmt"
	"io"
)

// Printer outputs R8/16 assembly text
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram outputs an entire program
func (p *Printer) PrintProgram(prog *Program) {
	fmt.Fprintf(p.w, "\t.text\n")
	for _, f := range prog.Functions {
		p.PrintFunction(f)
	}

	if prog.StaticUsed > 0 {
		fmt.Fprintf(p.w, "\t.data\n")
		fmt.Fprintf(p.w, "\t.org\t0x%04x\n", prog.StaticBase)
		fmt.Fprintf(p.w, "spill_area:\n")
		fmt.Fprintf(p.w, "\t.zero\t%d\n", prog.StaticUsed)
	}
}

// PrintFunction outputs one function
func (p *Printer) PrintFunction(f Function) {
	fmt.Fprintf(p.w, "\t.global\t%s\n", f.Name)
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	for _, inst := range f.Code {
		p.printInstruction(inst)
	}
	fmt.Fprintf(p.w, "\n")
}

func (p *Printer) printInstruction(inst Instr) {
	if inst.LabelDef != "" {
		fmt.Fprintf(p.w, "%s:\n", inst.LabelDef)
		return
	}
	fmt.Fprintf(p.w, "\t%s", inst.Op)
	for i, a := range inst.Args {
		if i == 0 {
			fmt.Fprintf(p.w, "\t%s", a)
		} else {
			fmt.Fprintf(p.w, ", %s", a)
		}
	}
	if inst.Comment != "" {
		fmt.Fprintf(p.w, "\t; %s", inst.Comment)
	}
	fmt.Fprintf(p.w, "\n")
}
