package asmgen

import (
	"github.com/raymyers/ralph-ra/pkg/asm"
	"github.com/raymyers/ralph-ra/pkg/ir"
)

// move is one component of a parallel assignment
type move struct {
	src, dst asm.Operand
	class    ir.Class
}

// resolveParallelMoves turns a parallel assignment into a sequence of movs.
// A move is emitted once no pending move still reads its destination;
// when only cycles remain, one destination is saved in the scratch
// register of its class and later reads are redirected there.
func resolveParallelMoves(moves []move, scratch func(ir.Class) asm.Reg) []asm.Instr {
	var pending []move
	for _, m := range moves {
		if m.src != m.dst {
			pending = append(pending, m)
		}
	}

	var result []asm.Instr
	for len(pending) > 0 {
		progressed := false
		for i := 0; i < len(pending); i++ {
			m := pending[i]
			if readByOther(pending, i, m.dst) {
				continue
			}
			result = append(result, asm.Instr{Op: "mov", Args: []asm.Operand{m.dst, m.src}})
			pending = append(pending[:i], pending[i+1:]...)
			progressed = true
			i--
		}
		if progressed {
			continue
		}

		// Every pending destination is still needed: break the cycle.
		m := pending[0]
		tmp := scratch(m.class)
		result = append(result, asm.Instr{Op: "mov", Args: []asm.Operand{tmp, m.dst}})
		for j := range pending {
			if pending[j].src == m.dst {
				pending[j].src = tmp
			}
		}
	}
	return result
}

func readByOther(pending []move, skip int, dst asm.Operand) bool {
	for j, o := range pending {
		if j != skip && o.src == dst {
			return true
		}
	}
	return false
}
