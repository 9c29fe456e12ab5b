// Package vm is the Interpreter component of spec §4.3: it dispatches
// a compiled CodeUnit's instruction stream against a register file,
// invoking the values/runtime packages for every primitive operation
// and never touching Dynamic State except through the interfaces
// spec §4.5 names.
package vm

import (
	"io"
	"os"

	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/runtime"
	"github.com/go-perl/plvm/values"
)

// StringCompiler parses and compiles an `eval STRING` child unit. The
// engine does not own a lexer/parser — spec §1 places that outside the
// core's scope — so a host wires one in the way the teacher's VM wires
// a CompilerCallback for `include`/`require`. A nil StringCompiler
// makes `eval STRING` a runtime error naming the missing collaborator.
type StringCompiler func(source, packageName string, pragmas compiler.PragmaSnapshot) (*compiler.CodeUnit, error)

// Engine is one independent instantiation of the Perl runtime (spec
// §9: "isolate [global state] behind a single object passed by
// reference ... so that embedding hosts can instantiate multiple
// independent engines"). Every field here is exactly one of the
// Dynamic State interfaces spec §4.5 enumerates, plus the ambient
// debug/profiling/IO surface the teacher carries alongside its VM.
type Engine struct {
	Globals  *runtime.Globals
	Dynamic  *runtime.DynamicStack
	Frames   *runtime.FrameStack
	Packages *runtime.PackageStack
	Error    *runtime.ErrorState
	Match    *runtime.MatchState
	Regex    *runtime.RegexCache
	IO       *runtime.IO

	StringCompile StringCompiler

	Debug   *DebugRecorder
	profile *profileState

	// persistentState backs `state`-declared variables (spec §3.6):
	// keyed by CodeUnit.DebugID + slot name, it survives across
	// repeated calls of the same sub for as long as this Engine does.
	persistentState map[string]values.Value
}

// New constructs an Engine wired to the host's real stdio, with
// debugging and profiling both off by default.
func New() *Engine {
	return NewWithIO(os.Stdout, os.Stderr, os.Stdin)
}

// NewWithIO is New with explicit stdio streams, for a host that
// captures or redirects the engine's output.
func NewWithIO(stdout, stderr io.Writer, stdin io.Reader) *Engine {
	e := &Engine{
		Globals:  runtime.NewGlobals(),
		Dynamic:  runtime.NewDynamicStack(),
		Frames:   runtime.NewFrameStack(),
		Packages: runtime.NewPackageStack("main"),
		Error:    runtime.NewErrorState(),
		Match:    runtime.NewMatchState(),
		Regex:    runtime.NewRegexCache(),
		IO:       runtime.NewIO(stdout, stderr, stdin),
		Debug:    NewDebugRecorder(DebugLevelNone),
		profile:  newProfileState(),
	}
	// $@ is the same Scalar as Error's: both a qualified "main::@" read
	// and eval's own bookkeeping (SetValue/Clear) must observe one Cell.
	e.Globals.SetScalar("main::@", e.Error.Scalar())
	e.Globals.SetScalar("main::0", values.NewString("perl"))
	e.Globals.SetScalar("main::_", values.NewUndef())
	return e
}

// wantArrayFromContext adapts the opcode-level integer context tag
// (0=void,1=scalar,2=list, spec §6) to runtime.WantArray.
func wantArrayFromContext(tag int64) runtime.WantArray {
	switch tag {
	case 1:
		return runtime.WantScalar
	case 2:
		return runtime.WantList
	default:
		return runtime.WantVoid
	}
}
