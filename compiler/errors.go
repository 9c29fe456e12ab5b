package compiler

import (
	"fmt"

	"github.com/go-perl/plvm/ast"
)

// CompileError is raised for syntactic-lvalue violations, strict-vars
// violations, malformed local/my, or unsupported assignment targets
// (spec §4.2). The compiler never catches its own CompileErrors; they
// surface straight to the caller of Compile.
type CompileError struct {
	Message  string
	Position ast.Position
}

func (e *CompileError) Error() string {
	if e.Position.File == "" && e.Position.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s at %s line %d", e.Message, e.Position.File, e.Position.Line)
}

func errAt(pos ast.Position, format string, args ...interface{}) *CompileError {
	return &CompileError{Message: fmt.Sprintf(format, args...), Position: pos}
}
