package stacking

import (
	"github.com/raymyers/ralph-ra/pkg/asm"
	"github.com/raymyers/ralph-ra/pkg/target"
)

// GeneratePrologue emits:
//
//	push fp
//	mov  fp, sp
//	sub  sp, #LocalSize     (when there are spill slots)
//	push <callee-saved>...
func GeneratePrologue(layout *FrameLayout, t *target.Target) []asm.Instr {
	fp, sp := asm.Reg{Name: t.FP}, asm.Reg{Name: t.SP}

	prologue := []asm.Instr{
		{Op: "push", Args: []asm.Operand{fp}},
		{Op: "mov", Args: []asm.Operand{fp, sp}},
	}
	if layout.LocalSize > 0 {
		prologue = append(prologue, asm.Instr{
			Op:      "sub",
			Args:    []asm.Operand{sp, asm.Imm{Value: int64(layout.LocalSize)}},
			Comment: "spill area",
		})
	}
	for _, r := range layout.CalleeSave {
		prologue = append(prologue, asm.Instr{Op: "push", Args: []asm.Operand{asm.Reg{Name: r}}})
	}
	return prologue
}

// GenerateEpilogue emits the inverse of GeneratePrologue followed by ret.
// Restoring SP from FP also drops the spill area.
func GenerateEpilogue(layout *FrameLayout, t *target.Target) []asm.Instr {
	fp, sp := asm.Reg{Name: t.FP}, asm.Reg{Name: t.SP}

	var epilogue []asm.Instr
	for i := len(layout.CalleeSave) - 1; i >= 0; i-- {
		epilogue = append(epilogue, asm.Instr{Op: "pop", Args: []asm.Operand{asm.Reg{Name: layout.CalleeSave[i]}}})
	}
	epilogue = append(epilogue,
		asm.Instr{Op: "mov", Args: []asm.Operand{sp, fp}},
		asm.Instr{Op: "pop", Args: []asm.Operand{fp}},
		asm.Instr{Op: "ret"},
	)
	return epilogue
}
