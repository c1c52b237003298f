package ir

// Builder assembles a Function block by block. Variable kinds are fixed
// at declaration time.
type Builder struct {
	fn *Function
}

// NewBuilder starts a new function
func NewBuilder(name string) *Builder {
	return &Builder{fn: NewFunction(name)}
}

// Entry marks the function as the program entry point
func (b *Builder) Entry() *Builder {
	b.fn.Entry = true
	return b
}

// Param declares a parameter and returns its name
func (b *Builder) Param(name string, c Class) string {
	b.fn.Params = append(b.fn.Params, Var{Name: name, Class: c, Kind: Param})
	return name
}

// Local declares a user variable and returns its name
func (b *Builder) Local(name string, c Class) string {
	b.fn.Decls = append(b.fn.Decls, Var{Name: name, Class: c, Kind: Local})
	return name
}

// Temp declares a compiler temporary and returns its name
func (b *Builder) Temp(name string, c Class) string {
	b.fn.Decls = append(b.fn.Decls, Var{Name: name, Class: c, Kind: Temp})
	return name
}

// Block starts a new basic block; following Emit calls append to it.
func (b *Builder) Block(label string) *Builder {
	return b.LoopBlock(label, RoleNone)
}

// LoopBlock starts a new basic block with an explicit loop role
func (b *Builder) LoopBlock(label string, role BlockRole) *Builder {
	b.fn.Blocks = append(b.fn.Blocks, Block{Label: label, Role: role})
	return b
}

// Emit appends an instruction to the current block. A block labelled
// "entry" is created if none exists yet.
func (b *Builder) Emit(op Op, result string, args ...Operand) *Builder {
	if len(b.fn.Blocks) == 0 {
		b.Block("entry")
	}
	blk := &b.fn.Blocks[len(b.fn.Blocks)-1]
	blk.Instrs = append(blk.Instrs, Instr{Op: op, Args: args, Result: result})
	return b
}

// Function returns the built function
func (b *Builder) Function() *Function {
	return b.fn
}

// V is shorthand for a variable operand
func V(name string) VarRef { return VarRef{Name: name} }

// I is shorthand for an immediate operand
func I(v int64) Imm { return Imm{Value: v} }

// S is shorthand for a symbol operand
func S(name string) Sym { return Sym{Name: name} }
