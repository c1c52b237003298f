package stacking

import (
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/loc"
	"github.com/raymyers/ralph-ra/pkg/target"
)

// FrameLayout describes the concrete frame of one function
type FrameLayout struct {
	// LocalSize is the spill area below FP (maxFrameBytes)
	LocalSize int
	// CalleeSave lists the callee-saved registers to push, in push order
	CalleeSave []string
	// CalleeSaveSize is the number of bytes those pushes take
	CalleeSaveSize int
	// TotalSize is the SP decrement below the saved FP
	TotalSize int
}

// ComputeLayout computes the frame of a function from its spill area and
// locations. The entry point never returns to a caller that expects its
// registers preserved, so it saves none.
func ComputeLayout(frame *Frame, locs Locations, t *target.Target, entry bool) *FrameLayout {
	layout := &FrameLayout{LocalSize: frame.MaxBytes()}
	if !entry {
		layout.CalleeSave = UsedCalleeSaveRegs(locs, t)
	}
	for _, r := range layout.CalleeSave {
		layout.CalleeSaveSize += regSize(r, t)
	}
	layout.TotalSize = layout.LocalSize + layout.CalleeSaveSize
	return layout
}

// UsedCalleeSaveRegs returns the registers a function must preserve for
// its caller: callee-saved and loop registers bound to some variable,
// Narrow before Wide, each in target order.
func UsedCalleeSaveRegs(locs Locations, t *target.Target) []string {
	used := make(map[string]bool)
	for _, l := range locs {
		if reg, ok := loc.IsReg(l); ok {
			used[reg] = true
		}
	}

	var result []string
	for _, c := range []ir.Class{ir.Narrow, ir.Wide} {
		rc := t.Class(c)
		for _, r := range append(append([]string(nil), rc.CalleeSaved...), rc.Loop...) {
			if used[r] {
				result = append(result, r)
			}
		}
	}
	return result
}

// regSize returns the width in bytes of a physical register
func regSize(reg string, t *target.Target) int {
	if t.Narrow.Owns(reg) {
		return 1
	}
	return 2
}
