// Package diag implements the error taxonomy and accumulation policy used
// throughout the pipeline: name analysis, type analysis and data-flow
// collect diagnostics and keep running; the baseline compiler and runtime
// do not.
package diag

import (
	"fmt"
	"log"
)

// Kind classifies a Diagnostic per the error taxonomy.
type Kind int

const (
	ParseError Kind = iota
	NameError
	TypeError
	AssertionFailure
	RuntimeFailure
	MemoryExhausted
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case NameError:
		return "name error"
	case TypeError:
		return "type error"
	case AssertionFailure:
		return "internal error"
	case RuntimeFailure:
		return "runtime failure"
	case MemoryExhausted:
		return "out of memory"
	default:
		return "error"
	}
}

// Diagnostic is one reported problem, with the source line it refers to
// (0 if not applicable).
type Diagnostic struct {
	Kind Kind
	Line int
	Msg  string
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", d.Kind, d.Line, d.Msg)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Msg)
}

// Reporter accumulates diagnostics for one pass (name analysis, type
// analysis, data-flow). The pipeline checks Count() after each pass and
// refuses to progress to the next one while it is non-zero.
type Reporter struct {
	diags []Diagnostic
}

// Errorf records a diagnostic of the given kind and keeps going.
func (r *Reporter) Errorf(kind Kind, line int, format string, args ...interface{}) {
	r.diags = append(r.diags, Diagnostic{Kind: kind, Line: line, Msg: fmt.Sprintf(format, args...)})
}

// Count reports how many diagnostics have accumulated so far.
func (r *Reporter) Count() int { return len(r.diags) }

// Diagnostics returns the accumulated diagnostics in report order.
func (r *Reporter) Diagnostics() []Diagnostic { return r.diags }

// Abort reports an internal invariant violation and terminates the
// process. Used for AssertionFailure: the baseline compiler must never see
// residual semantic errors, and a missing symbol resolution or unsupported
// AST fragment at that point is a bug in an earlier pass, not user error.
func Abort(format string, args ...interface{}) {
	log.Fatalf("avm: internal error: "+format, args...)
}
