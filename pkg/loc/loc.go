// Package loc defines the concrete storage locations bound to variables
// once allocation is done.
package loc

import "fmt"

// Loc is a variable location: a register, a frame slot or a static address.
type Loc interface {
	implLoc()
	String() string
}

// R is a physical register
type R struct {
	Reg string
}

// S is a frame slot at Ofs bytes from the frame pointer. Locals and spills
// use negative offsets, incoming stack parameters positive ones.
type S struct {
	Ofs  int
	Size int
}

// A is an absolute address in the static spill area
type A struct {
	Addr int
	Size int
}

func (R) implLoc() {}
func (S) implLoc() {}
func (A) implLoc() {}

func (r R) String() string { return r.Reg }

func (s S) String() string {
	if s.Ofs < 0 {
		return fmt.Sprintf("[fp-%d]", -s.Ofs)
	}
	return fmt.Sprintf("[fp+%d]", s.Ofs)
}

func (a A) String() string { return fmt.Sprintf("[0x%04x]", a.Addr) }

// Overlaps reports whether two frame slots share any byte
func (s S) Overlaps(o S) bool {
	return s.Ofs < o.Ofs+o.Size && o.Ofs < s.Ofs+s.Size
}

// IsReg reports whether l is a register location and returns its name
func IsReg(l Loc) (string, bool) {
	if r, ok := l.(R); ok {
		return r.Reg, true
	}
	return "", false
}
