// Package stacking gives spilled variables a home: a slot in the function's
// stack frame, or a static address when the frame cannot reach any further.
// It also lays out the frame for prologue and epilogue emission.
package stacking

import (
	"github.com/raymyers/ralph-ra/pkg/ir"
	"github.com/raymyers/ralph-ra/pkg/loc"
)

// R8/16 frame layout:
//
//	+---------------------------+
//	| stack parameters          |  fp+4 and up
//	| return address            |  fp+2
//	| saved fp                  |  fp+0   <- fp
//	+---------------------------+
//	| spill slots               |  fp-1 down to fp-LocalSize
//	+---------------------------+
//	| callee-saved registers    |  pushed after the frame is reserved
//	+---------------------------+  <- sp

// Frame is the per-function bump allocator for spill slots
type Frame struct {
	// Limit is the largest displacement below FP that may be used
	Limit int

	next   int // bytes used below FP
	static *StaticPool
}

// NewFrame creates an empty frame. static receives spills that do not fit
// under Limit; it may be nil when the frame is known to be large enough.
func NewFrame(limit int, static *StaticPool) *Frame {
	return &Frame{Limit: limit, static: static}
}

// Slot allocates storage for a variable of class c. Narrow slots take one
// byte, Wide slots two bytes at an even displacement. Offsets grow
// downward from FP and never overlap. When the slot would fall beyond
// Limit a static address is returned instead.
func (f *Frame) Slot(c ir.Class) (loc.Loc, error) {
	size := c.Size()
	end := alignUp(f.next+size, size)
	if end <= f.Limit {
		f.next = end
		return loc.S{Ofs: -end, Size: size}, nil
	}
	if f.static == nil {
		return nil, ErrSpillExhaustion
	}
	a, err := f.static.Alloc(size)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// MaxBytes returns the number of bytes reserved below FP so far
func (f *Frame) MaxBytes() int {
	return f.next
}

// alignUp rounds n up to the nearest multiple of align
func alignUp(n, align int) int {
	if align == 0 {
		return n
	}
	return ((n + align - 1) / align) * align
}
