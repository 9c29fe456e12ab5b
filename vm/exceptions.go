package vm

import (
	"fmt"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/values"
)

// PerlException is a user-raised `die` (spec §7: "thrown as runtime
// exceptions carrying the message value"). It is returned as a Go
// error from frame.run so it can unwind through any number of nested
// Execute calls until an OP_EVAL_TRY handler — in this frame or an
// ancestor's — catches it; an uncaught one propagates all the way to
// the original caller of Execute, exactly like any other Go error.
type PerlException struct {
	Value *values.Scalar
}

func (e *PerlException) Error() string { return e.Value.ToStr() }

// NewDie builds the exception `die EXPR` raises, applying Perl's
// "append ` at FILE line N.\n` when the message lacks a trailing
// newline" rule (spec §6's diagnostics contract) to plain-string
// messages only — a blessed-reference or other non-string die payload
// is thrown verbatim.
func NewDie(v *values.Scalar, pos ast.Position) *PerlException {
	if v.IsRef() {
		return &PerlException{Value: v}
	}
	msg := v.ToStr()
	if msg == "" {
		msg = "Died"
	}
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		msg = fmt.Sprintf("%s at %s line %d.\n", msg, pos.File, pos.Line)
	}
	return &PerlException{Value: values.NewString(msg)}
}

// RuntimeError is a wrong-kind-of-value-passed-to-an-opcode failure
// (spec §7's "runtime type errors"): it carries the faulting PC and
// unit so Error() can name the source position, and converts to a
// PerlException (so `eval` catches it exactly like a `die`) when an
// eval-try handler catches it. One that escapes Execute is returned as
// the *RuntimeError itself.
type RuntimeError struct {
	Message string
	PC      int
	Unit    *compiler.CodeUnit
}

func (e *RuntimeError) Error() string {
	if e.Unit != nil {
		if pos, ok := e.Unit.PCToSource[e.PC]; ok {
			return fmt.Sprintf("%s at %s line %d.\n", e.Message, pos.File, pos.Line)
		}
	}
	return e.Message + "\n"
}

func (e *RuntimeError) toException() *PerlException {
	return &PerlException{Value: values.NewString(e.Error())}
}

// ctlTransfer wraps a ControlFlowMarker as a Go error (spec §3.4/§4.3).
// Nothing in the dispatch loop constructs one: loop control compiles to
// direct jumps (see DESIGN.md), and tryCatch never catches it.
type ctlTransfer struct {
	marker *values.ControlFlowMarker
}

func (c *ctlTransfer) Error() string {
	return fmt.Sprintf("unresolved %s outside any enclosing loop", c.marker.CtlKind)
}

// UnhandledMarkerError describes a control-flow marker that escapes the top of the call stack (spec §7: "An unmatched
// marker at the top of the call stack is an error").
type UnhandledMarkerError struct {
	Kind  values.CtlKind
	Label string
}

func (e *UnhandledMarkerError) Error() string {
	name := e.Kind.String()
	if e.Label != "" {
		return fmt.Sprintf("Label not found for %q %s", e.Label, name)
	}
	return fmt.Sprintf("Can't %q outside a loop block", name)
}
