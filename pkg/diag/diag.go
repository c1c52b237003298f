// Package diag defines the diagnostics the allocator reports and a sink
// that records them and forwards them to a tlog logger.
package diag

import (
	"fmt"

	"tlog.app/go/tlog"
)

// Kind is the diagnostic category
type Kind int

const (
	// AllocationConflict: two interfering variables ended up in the same
	// register and one was spilled. Internal only.
	AllocationConflict Kind = iota
	// UnresolvedVariable: a variable reached emission without a location
	// and was allocated on the spot.
	UnresolvedVariable
	// InvalidRegisterClass: a variable had no usable class and defaulted to Wide.
	InvalidRegisterClass
	// SpillExhaustion: the static spill area ran out. Fatal.
	SpillExhaustion
)

func (k Kind) String() string {
	switch k {
	case AllocationConflict:
		return "allocation-conflict"
	case UnresolvedVariable:
		return "unresolved-variable"
	case InvalidRegisterClass:
		return "invalid-register-class"
	case SpillExhaustion:
		return "spill-exhaustion"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Severity of a diagnostic
type Severity int

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "note"
	}
}

// Severity returns the fixed severity of the kind
func (k Kind) Severity() Severity {
	switch k {
	case AllocationConflict:
		return Note
	case SpillExhaustion:
		return Error
	default:
		return Warning
	}
}

// Diagnostic is one reported event
type Diagnostic struct {
	Kind     Kind
	Function string
	Var      string
	Msg      string
}

func (d Diagnostic) String() string {
	if d.Var == "" {
		return fmt.Sprintf("%s: %s: %s [%s]", d.Kind.Severity(), d.Function, d.Msg, d.Kind)
	}
	return fmt.Sprintf("%s: %s: %s: %s [%s]", d.Kind.Severity(), d.Function, d.Var, d.Msg, d.Kind)
}

// Sink collects diagnostics for one function. It is not safe for
// concurrent use; parallel compilation gives each worker its own sink.
type Sink struct {
	Function string
	Logger   *tlog.Logger

	list []Diagnostic
}

// NewSink creates a sink for the named function. l may be nil.
func NewSink(function string, l *tlog.Logger) *Sink {
	return &Sink{Function: function, Logger: l}
}

// Report records a diagnostic and logs it
func (s *Sink) Report(k Kind, v string, format string, args ...interface{}) {
	d := Diagnostic{Kind: k, Function: s.Function, Var: v, Msg: fmt.Sprintf(format, args...)}
	s.list = append(s.list, d)
	if s.Logger != nil {
		s.Logger.Printw(d.Msg, "severity", k.Severity().String(), "kind", k.String(), "function", d.Function, "var", d.Var)
	}
}

// All returns every recorded diagnostic in report order
func (s *Sink) All() []Diagnostic {
	return s.list
}

// Count returns how many diagnostics of kind k were reported
func (s *Sink) Count(k Kind) int {
	n := 0
	for _, d := range s.list {
		if d.Kind == k {
			n++
		}
	}
	return n
}
