package ir

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
)

// The YAML interchange format written by the front end:
//
//	name: demo
//	functions:
//	  - name: sum
//	    params: [{name: n, class: narrow}]
//	    vars:   [{name: acc, class: wide, kind: local}]
//	    blocks:
//	      - label: entry
//	        code:
//	          - "acc = mov 0"
//	          - "call @print, acc"
//
// Instruction lines have the form "[result =] op [arg, arg...]". Integer
// arguments are immediates, "@name" is a symbol, anything else names a
// variable.

type moduleFile struct {
	Name      string         `yaml:"name"`
	Functions []functionFile `yaml:"functions"`
}

type functionFile struct {
	Name   string      `yaml:"name"`
	Entry  bool        `yaml:"entry,omitempty"`
	Params []varFile   `yaml:"params,omitempty"`
	Vars   []varFile   `yaml:"vars,omitempty"`
	Blocks []blockFile `yaml:"blocks"`
}

type varFile struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class,omitempty"`
	Kind  string `yaml:"kind,omitempty"`
}

type blockFile struct {
	Label string   `yaml:"label"`
	Role  string   `yaml:"role,omitempty"`
	Code  []string `yaml:"code"`
}

// LoadFile reads a YAML module from disk
func LoadFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read %s", path)
	}
	m, err := Load(data)
	if err != nil {
		return nil, errors.Wrap(err, "%s", path)
	}
	return m, nil
}

// Load decodes a YAML module
func Load(data []byte) (*Module, error) {
	var mf moduleFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, errors.Wrap(err, "decode module")
	}

	m := &Module{Name: mf.Name}
	for _, ff := range mf.Functions {
		fn, err := convertFunction(ff)
		if err != nil {
			return nil, errors.Wrap(err, "function %v", ff.Name)
		}
		m.Functions = append(m.Functions, fn)
	}
	return m, nil
}

func convertFunction(ff functionFile) (*Function, error) {
	if ff.Name == "" {
		return nil, errors.New("missing name")
	}
	fn := &Function{Name: ff.Name, Entry: ff.Entry}

	for _, p := range ff.Params {
		c, err := ParseClass(p.Class)
		if err != nil {
			return nil, errors.Wrap(err, "param %v", p.Name)
		}
		fn.Params = append(fn.Params, Var{Name: p.Name, Class: c, Kind: Param})
	}
	for _, v := range ff.Vars {
		c, err := ParseClass(v.Class)
		if err != nil {
			return nil, errors.Wrap(err, "var %v", v.Name)
		}
		k, err := ParseKind(v.Kind)
		if err != nil {
			return nil, errors.Wrap(err, "var %v", v.Name)
		}
		if k == Param {
			return nil, errors.New("var %v: parameters must be listed under params", v.Name)
		}
		fn.Decls = append(fn.Decls, Var{Name: v.Name, Class: c, Kind: k})
	}

	for _, bf := range ff.Blocks {
		role, err := ParseRole(bf.Role)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", bf.Label)
		}
		blk := Block{Label: bf.Label, Role: role}
		for i, line := range bf.Code {
			in, err := ParseInstr(line)
			if err != nil {
				return nil, errors.Wrap(err, "block %v line %d", bf.Label, i+1)
			}
			blk.Instrs = append(blk.Instrs, in)
		}
		fn.Blocks = append(fn.Blocks, blk)
	}
	return fn, nil
}

// ParseClass parses a class tag. The empty string and "unknown" map to
// ClassUnknown so the allocator can apply its default.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(s) {
	case "", "unknown":
		return ClassUnknown, nil
	case "narrow", "u8", "i8", "byte":
		return Narrow, nil
	case "wide", "u16", "i16", "word":
		return Wide, nil
	}
	return ClassUnknown, errors.New("unknown register class %q", s)
}

// ParseKind parses a variable kind; empty means Local.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "local":
		return Local, nil
	case "temp":
		return Temp, nil
	case "param":
		return Param, nil
	}
	return Local, errors.New("unknown variable kind %q", s)
}

// ParseRole parses a block role; empty means RoleNone.
func ParseRole(s string) (BlockRole, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return RoleNone, nil
	case "header", "cond":
		return RoleHeader, nil
	case "body":
		return RoleBody, nil
	case "increment", "step":
		return RoleIncrement, nil
	}
	return RoleNone, errors.New("unknown block role %q", s)
}

// ParseInstr parses one textual instruction line
func ParseInstr(line string) (Instr, error) {
	var in Instr
	text := strings.TrimSpace(line)
	if text == "" {
		return in, errors.New("empty instruction")
	}

	if lhs, rhs, ok := strings.Cut(text, "="); ok {
		in.Result = strings.TrimSpace(lhs)
		if in.Result == "" || strings.ContainsAny(in.Result, " \t,") {
			return in, errors.New("bad result %q", lhs)
		}
		text = strings.TrimSpace(rhs)
	}

	op, rest, _ := strings.Cut(text, " ")
	if op == "" {
		return in, errors.New("missing opcode in %q", line)
	}
	in.Op = Op(strings.ToLower(op))

	rest = strings.TrimSpace(rest)
	if rest == "" {
		return in, nil
	}
	for _, tok := range strings.Split(rest, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return in, errors.New("empty operand in %q", line)
		}
		in.Args = append(in.Args, parseOperand(tok))
	}
	return in, nil
}

func parseOperand(tok string) Operand {
	if strings.HasPrefix(tok, "@") {
		return Sym{Name: tok[1:]}
	}
	if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return Imm{Value: n}
	}
	return VarRef{Name: tok}
}
