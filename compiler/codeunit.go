// Package compiler walks an already-parsed AST and lowers it to a
// CodeUnit: a linear instruction stream over a typed register file,
// following the register-allocation, context-propagation, and
// assignment-protocol rules of spec §4.2.
package compiler

import (
	"github.com/google/uuid"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

// CapturedSlot describes one closure-captured register (spec §3.3,
// registers 3..3+N-1).
type CapturedSlot struct {
	Name string
	Reg  uint32
}

// PragmaSnapshot is the lexical pragma state in effect at a point in the
// source, consumed verbatim by `eval STRING` child compilations (spec
// §3.2's strict_flags/feature_flags/warning_flags/compile_package).
type PragmaSnapshot struct {
	StrictVars bool
	StrictRefs bool
	Features   map[string]bool
	Warnings   map[string]bool
	Package    string
}

// DefaultPragmas returns the pragma state a fresh top-level compile
// starts under (strict everything on, default package "main").
func DefaultPragmas() PragmaSnapshot {
	return PragmaSnapshot{
		StrictVars: true,
		StrictRefs: true,
		Features:   map[string]bool{},
		Warnings:   map[string]bool{},
		Package:    "main",
	}
}

func (p PragmaSnapshot) clone() PragmaSnapshot {
	cp := p
	cp.Features = make(map[string]bool, len(p.Features))
	for k, v := range p.Features {
		cp.Features[k] = v
	}
	cp.Warnings = make(map[string]bool, len(p.Warnings))
	for k, v := range p.Warnings {
		cp.Warnings[k] = v
	}
	return cp
}

// CodeUnit is the compiler's sole output artifact and the interpreter's
// sole input (spec §3.2). It is immutable once Compile returns.
type CodeUnit struct {
	Instructions []opcodes.Instruction
	ConstantPool []values.Value
	StringPool   []string
	MaxRegisters uint32
	Captured     []CapturedSlot

	SourceName     string
	DebugID        string
	PCToSource     map[int]ast.Position
	Pragmas        PragmaSnapshot
	ParamNames     []string // formal parameter names, in OP_RECV-equivalent binding order (documentary; binding itself happens via @_ indexing)
	Name           string   // "" for anonymous subs / the top-level unit
}

func newCodeUnit(sourceName string, pragmas PragmaSnapshot) *CodeUnit {
	return &CodeUnit{
		SourceName: sourceName,
		DebugID:    uuid.NewString(),
		PCToSource: make(map[int]ast.Position),
		Pragmas:    pragmas,
	}
}

func (u *CodeUnit) addConst(v values.Value) uint32 {
	u.ConstantPool = append(u.ConstantPool, v)
	return uint32(len(u.ConstantPool) - 1)
}

func (u *CodeUnit) addString(s string) uint32 {
	for i, existing := range u.StringPool {
		if existing == s {
			return uint32(i)
		}
	}
	u.StringPool = append(u.StringPool, s)
	return uint32(len(u.StringPool) - 1)
}
