package regalloc

import (
	"slices"
	"strings"
	"unicode"

	"github.com/raymyers/ralph-ra/pkg/ir"
)

// Mode selects how interference is approximated for a function
type Mode int

const (
	// ModeAuto lets AnalyzeLiveness choose
	ModeAuto Mode = iota
	// ModeExact: variables referenced in the same block interfere
	ModeExact
	// ModeBlockConservative: as ModeExact, and every variable referenced in
	// more than one block interferes with every other such variable
	ModeBlockConservative
)

func (m Mode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModeBlockConservative:
		return "block-conservative"
	default:
		return "auto"
	}
}

// ParseMode parses a mode name as printed by String
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ModeAuto, true
	case "exact":
		return ModeExact, true
	case "block-conservative", "conservative":
		return ModeBlockConservative, true
	}
	return ModeAuto, false
}

// DefaultThreshold is the variable count above which a function with loops
// switches to block-conservative interference.
const DefaultThreshold = 20

// LivenessInfo holds per-block reference sets and loop facts of a function
type LivenessInfo struct {
	// Refs[i] is the set of variables referenced in block i
	Refs []VarSet
	// Roles[i] is the loop role of block i
	Roles []ir.BlockRole
	// FirstBlock and LastBlock give the span of blocks referencing a variable
	FirstBlock map[string]int
	LastBlock  map[string]int
	// MultiBlock holds variables referenced in more than one block
	MultiBlock VarSet
	// Induction holds loop induction variables
	Induction VarSet
	HasLoop   bool
	NumVars   int
	Mode      Mode
}

// BlockRoleOf returns the loop role of a block: the explicit role when set,
// otherwise the one its label spells (for_header_2, while.cond, loop_inc...).
// A label only spells a role when it also names a loop, so if_cond and
// if_body stay plain blocks.
func BlockRoleOf(b ir.Block) ir.BlockRole {
	if b.Role != ir.RoleNone {
		return b.Role
	}
	words := strings.FieldsFunc(strings.ToLower(b.Label), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if !slices.ContainsFunc(words, isLoopWord) {
		return ir.RoleNone
	}
	for _, w := range words {
		switch w {
		case "header", "cond", "condition":
			return ir.RoleHeader
		case "increment", "inc", "step", "latch":
			return ir.RoleIncrement
		case "body":
			return ir.RoleBody
		}
	}
	return ir.RoleNone
}

func isLoopWord(w string) bool {
	switch w {
	case "for", "while", "loop", "do":
		return true
	}
	return false
}

// AnalyzeLiveness computes the reference sets of fn and picks the
// interference mode. force overrides the choice unless it is ModeAuto.
func AnalyzeLiveness(fn *ir.Function, threshold int, force Mode) *LivenessInfo {
	info := &LivenessInfo{
		FirstBlock: make(map[string]int),
		LastBlock:  make(map[string]int),
		MultiBlock: NewVarSet(),
		Induction:  NewVarSet(),
	}

	all := NewVarSet()
	for _, p := range fn.Params {
		all.Add(p.Name)
	}

	for i, b := range fn.Blocks {
		refs := NewVarSet()
		for _, in := range b.Instrs {
			for _, v := range in.Vars() {
				refs.Add(v)
			}
		}
		for v := range refs {
			all.Add(v)
			if _, seen := info.FirstBlock[v]; seen {
				info.MultiBlock.Add(v)
			} else {
				info.FirstBlock[v] = i
			}
			info.LastBlock[v] = i
		}
		role := BlockRoleOf(b)
		if role != ir.RoleNone {
			info.HasLoop = true
		}
		info.Refs = append(info.Refs, refs)
		info.Roles = append(info.Roles, role)
	}
	info.NumVars = len(all)
	info.Induction = findInductionVars(fn, info)

	switch {
	case force != ModeAuto:
		info.Mode = force
	case info.HasLoop && info.NumVars > threshold:
		info.Mode = ModeBlockConservative
	default:
		info.Mode = ModeExact
	}
	return info
}

// findInductionVars returns variables read in a loop header and updated
// additively (v = add v, k / v = inc v) in a loop increment block.
func findInductionVars(fn *ir.Function, info *LivenessInfo) VarSet {
	inHeader := NewVarSet()
	for i, role := range info.Roles {
		if role == ir.RoleHeader {
			for v := range info.Refs[i] {
				inHeader.Add(v)
			}
		}
	}

	result := NewVarSet()
	for i, b := range fn.Blocks {
		if info.Roles[i] != ir.RoleIncrement {
			continue
		}
		for _, in := range b.Instrs {
			if v, ok := additiveTarget(in); ok && inHeader.Contains(v) {
				result.Add(v)
			}
		}
	}
	return result
}

// additiveTarget returns the variable an additive self-update writes
func additiveTarget(in ir.Instr) (string, bool) {
	if !in.Op.IsAdditive() {
		return "", false
	}
	target := in.Result
	if target == "" {
		// two-address form: inc i
		if len(in.Args) == 0 {
			return "", false
		}
		ref, ok := in.Args[0].(ir.VarRef)
		if !ok {
			return "", false
		}
		return ref.Name, true
	}
	for _, a := range in.Args {
		if ref, ok := a.(ir.VarRef); ok && ref.Name == target {
			return target, true
		}
	}
	return "", false
}
