// Package ir defines the intermediate representation consumed by the register
// allocator. A module is a list of functions, each made of ordered basic
// blocks of three-address instructions over named virtual variables.
package ir

// Class is the register class of a variable, derived from its bit width.
type Class int

const (
	ClassUnknown Class = iota // missing or ambiguous type tag
	Narrow                    // 8-bit values
	Wide                      // 16-bit values
)

func (c Class) String() string {
	switch c {
	case Narrow:
		return "narrow"
	case Wide:
		return "wide"
	default:
		return "unknown"
	}
}

// Size returns the storage size of the class in bytes.
// Unknown classes are stored as Wide.
func (c Class) Size() int {
	if c == Narrow {
		return 1
	}
	return 2
}

// Kind classifies a variable for allocation priority.
// It is set by whoever creates the variable and never inferred from its name.
type Kind int

const (
	Local Kind = iota // user-declared local
	Param             // function parameter
	Temp              // compiler-generated temporary
)

func (k Kind) String() string {
	switch k {
	case Param:
		return "param"
	case Temp:
		return "temp"
	default:
		return "local"
	}
}

// Var is a virtual variable scoped to one function.
type Var struct {
	Name  string
	Class Class
	Kind  Kind
}

// Operand is an instruction operand
type Operand interface {
	implOperand()
}

// VarRef references a virtual variable by name
type VarRef struct {
	Name string
}

// Imm is a literal value
type Imm struct {
	Value int64
}

// Sym references a label or function symbol
type Sym struct {
	Name string
}

func (VarRef) implOperand() {}
func (Imm) implOperand()    {}
func (Sym) implOperand()    {}

// Op is an instruction opcode.
type Op string

// Opcodes understood by the allocator. Other opcodes pass through untouched.
const (
	OpMov   Op = "mov"
	OpAdd   Op = "add"
	OpSub   Op = "sub"
	OpInc   Op = "inc"
	OpDec   Op = "dec"
	OpMul   Op = "mul"
	OpAnd   Op = "and"
	OpOr    Op = "or"
	OpXor   Op = "xor"
	OpCmp   Op = "cmp"
	OpLoad  Op = "load"
	OpStore Op = "store"
	OpJmp   Op = "jmp"
	OpBr    Op = "br" // br cond, label
	OpCall  Op = "call"
	OpRet   Op = "ret"
)

// IsAdditive reports whether the opcode performs an additive update.
func (o Op) IsAdditive() bool {
	switch o {
	case OpAdd, OpSub, OpInc, OpDec:
		return true
	}
	return false
}

// Instr is a single instruction. Result is empty when the instruction
// produces no value.
type Instr struct {
	Op     Op
	Args   []Operand
	Result string
}

// Vars returns the names of all variables the instruction references,
// operands first, then the result.
func (i Instr) Vars() []string {
	var names []string
	for _, a := range i.Args {
		if v, ok := a.(VarRef); ok {
			names = append(names, v.Name)
		}
	}
	if i.Result != "" {
		names = append(names, i.Result)
	}
	return names
}

// IsCall reports whether the instruction is a call site
func (i Instr) IsCall() bool {
	return i.Op == OpCall
}

// BlockRole marks the part a block plays in a loop.
type BlockRole int

const (
	RoleNone BlockRole = iota
	RoleHeader
	RoleBody
	RoleIncrement
)

func (r BlockRole) String() string {
	switch r {
	case RoleHeader:
		return "header"
	case RoleBody:
		return "body"
	case RoleIncrement:
		return "increment"
	default:
		return ""
	}
}

// Block is a basic block. Role may be left as RoleNone, in which case the
// loop role is taken from the label.
type Block struct {
	Label  string
	Role   BlockRole
	Instrs []Instr
}

// Function is one IR function. Decls declares every non-parameter
// variable; variables referenced but not declared have an unknown class.
type Function struct {
	Name   string
	Params []Var
	Decls  []Var
	Blocks []Block
	Entry  bool
}

// Module is a compilation unit
type Module struct {
	Name      string
	Functions []*Function
}

// NewFunction creates an empty function
func NewFunction(name string) *Function {
	return &Function{Name: name}
}

// Lookup finds the declaration of a variable, searching parameters first.
func (f *Function) Lookup(name string) (Var, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	for _, d := range f.Decls {
		if d.Name == name {
			return d, true
		}
	}
	return Var{}, false
}

// MakesCalls reports whether any block of the function contains a call
func (f *Function) MakesCalls() bool {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.IsCall() {
				return true
			}
		}
	}
	return false
}

// FindFunction returns the function with the given name, or nil
func (m *Module) FindFunction(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
