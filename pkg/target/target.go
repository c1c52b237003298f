// Package target describes the R8/16 register file and calling convention.
//
// The CPU has two register classes. Narrow registers hold 8-bit values,
// Wide registers hold 16-bit values. Each class has:
//
//	caller-saved  clobbered by calls, first ones carry parameters
//	callee-saved  preserved across calls
//	loop          sub-pool reserved for loop induction variables, preserved
//	              across calls like callee-saved registers
//	reserved      never allocated (stack pointer, frame pointer, spill scratch)
package target

import (
	"slices"

	"github.com/raymyers/ralph-ra/pkg/ir"
	"tlog.app/go/errors"
)

// RegClass holds the register tables of one class
type RegClass struct {
	CallerSaved []string `yaml:"caller_saved"`
	CalleeSaved []string `yaml:"callee_saved"`
	Params      []string `yaml:"params"`
	Return      string   `yaml:"return"`
	Loop        []string `yaml:"loop"`
	Reserved    []string `yaml:"reserved"`
	// Scratch breaks cycles in parallel register moves
	Scratch string `yaml:"scratch"`
}

// General returns the general allocation pool: caller-saved then callee-saved
func (rc *RegClass) General() []string {
	pool := make([]string, 0, len(rc.CallerSaved)+len(rc.CalleeSaved))
	pool = append(pool, rc.CallerSaved...)
	pool = append(pool, rc.CalleeSaved...)
	return pool
}

// ParamReg returns the register carrying the i-th parameter of this class
func (rc *RegClass) ParamReg(i int) (string, bool) {
	if i < 0 || i >= len(rc.Params) {
		return "", false
	}
	return rc.Params[i], true
}

// Owns reports whether reg is allocatable in this class (general or loop pool)
func (rc *RegClass) Owns(reg string) bool {
	return slices.Contains(rc.CallerSaved, reg) ||
		slices.Contains(rc.CalleeSaved, reg) ||
		slices.Contains(rc.Loop, reg)
}

// Target is a full machine description
type Target struct {
	Name   string   `yaml:"name"`
	Narrow RegClass `yaml:"narrow"`
	Wide   RegClass `yaml:"wide"`
	SP     string   `yaml:"sp"`
	FP     string   `yaml:"fp"`

	// FrameLimit is the largest displacement below FP addressable by a
	// single instruction. Spills beyond it go to static memory.
	FrameLimit int `yaml:"frame_limit"`

	// StaticBase and StaticSize delimit the static spill area
	StaticBase int `yaml:"static_base"`
	StaticSize int `yaml:"static_size"`

	// ConservativeThreshold is the variable count above which loop-shaped
	// functions use block-conservative interference.
	ConservativeThreshold int `yaml:"conservative_threshold"`
}

// Default returns the stock R8/16 description
func Default() *Target {
	return &Target{
		Name: "r816",
		Narrow: RegClass{
			CallerSaved: []string{"r0", "r1", "r2", "r3"},
			CalleeSaved: []string{"r4", "r5"},
			Params:      []string{"r0", "r1", "r2", "r3"},
			Return:      "r0",
			Loop:        []string{"r6", "r7"},
			Reserved:    []string{"r8", "r9"},
			Scratch:     "r9",
		},
		Wide: RegClass{
			CallerSaved: []string{"w0", "w1", "w2", "w3"},
			CalleeSaved: []string{"w4", "w5", "w6"},
			Params:      []string{"w0", "w1", "w2", "w3"},
			Return:      "w0",
			Loop:        []string{"w7", "w8"},
			Reserved:    []string{"w9", "sp", "fp"},
			Scratch:     "w9",
		},
		SP:                    "sp",
		FP:                    "fp",
		FrameLimit:            128,
		StaticBase:            0xE000,
		StaticSize:            0x1000,
		ConservativeThreshold: 20,
	}
}

// Class returns the register tables for a class. Unknown classes use Wide.
func (t *Target) Class(c ir.Class) *RegClass {
	if c == ir.Narrow {
		return &t.Narrow
	}
	return &t.Wide
}

// Validate checks the structural rules the allocator relies on
func (t *Target) Validate() error {
	if t.SP == "" || t.FP == "" || t.SP == t.FP {
		return errors.New("target %v: sp and fp must be distinct and set", t.Name)
	}
	if t.FrameLimit < 0 || t.StaticSize < 0 || t.StaticBase < 0 {
		return errors.New("target %v: negative frame limit or static area", t.Name)
	}
	if t.StaticBase+t.StaticSize > 0x10000 {
		return errors.New("target %v: static area exceeds 16-bit address space", t.Name)
	}

	seen := make(map[string]string)
	for _, c := range []ir.Class{ir.Narrow, ir.Wide} {
		rc := t.Class(c)
		if err := rc.validate(); err != nil {
			return errors.Wrap(err, "target %v: %v class", t.Name, c)
		}
		for _, r := range append(rc.General(), rc.Loop...) {
			if r == t.SP || r == t.FP {
				return errors.New("target %v: %v allocatable in %v class", t.Name, r, c)
			}
			if prev, ok := seen[r]; ok {
				return errors.New("target %v: register %v listed twice (%v, %v)", t.Name, r, prev, c)
			}
			seen[r] = c.String()
		}
	}
	return nil
}

func (rc *RegClass) validate() error {
	general := rc.General()
	if len(general) == 0 {
		return errors.New("empty general pool")
	}
	for _, r := range general {
		if slices.Contains(rc.Reserved, r) {
			return errors.New("%v is both reserved and allocatable", r)
		}
		if slices.Contains(rc.Loop, r) {
			return errors.New("%v is in both the loop and general pools", r)
		}
	}
	for _, r := range rc.Loop {
		if slices.Contains(rc.Reserved, r) {
			return errors.New("loop register %v is reserved", r)
		}
	}
	for _, r := range rc.Params {
		if !slices.Contains(rc.CallerSaved, r) {
			return errors.New("parameter register %v is not caller-saved", r)
		}
	}
	if rc.Return != "" && !slices.Contains(rc.CallerSaved, rc.Return) {
		return errors.New("return register %v is not caller-saved", rc.Return)
	}
	if rc.Scratch != "" && !slices.Contains(rc.Reserved, rc.Scratch) {
		return errors.New("scratch register %v is not reserved", rc.Scratch)
	}
	return nil
}
