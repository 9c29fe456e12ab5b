package compiler

import (
	"strings"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
)

// Fixed register slots every sub's frame starts with (see the register
// file layout): the CodeUnit/__SUB__ self-reference, the @_ argument
// array, and the caller's context tag. Locals and captures start
// allocating at regFirstLocal.
const (
	regCodeUnit   uint32 = 0
	regArgs       uint32 = 1
	regContextTag uint32 = 2
	regFirstLocal uint32 = 3
)

// punctuationGlobals are the special variables that always live in
// package main regardless of the current compile_package (spec §3.2),
// mirroring real Perl's treatment of $_, @ARGV, %ENV, and friends.
var punctuationGlobals = map[string]bool{
	"_": true, "@": true, "!": true, "0": true, ".": true, "/": true,
	"\\": true, ",": true, "\"": true, ";": true, "a": true, "b": true,
	"ENV": true, "ARGV": true, "ARGVOUT": true, "INC": true,
	"STDIN": true, "STDOUT": true, "STDERR": true,
}

// qualify resolves a bareword variable/sub name to its fully-qualified
// global name, applying Perl's compile-time package-resolution rule
// (spec §3.2's compile_package): already-qualified names pass through,
// punctuation globals always bind to main, everything else binds to
// the package in effect at this point in the source.
func (c *subCompiler) qualify(name string) string {
	if strings.Contains(name, "::") {
		return name
	}
	if punctuationGlobals[name] {
		return "main::" + name
	}
	return c.unit.Pragmas.Package + "::" + name
}

// scope is one lexical block's name->register map (spec §4.2: "the
// compiler maintains a stack of scope maps; declaration (`my`) inserts
// into the top map; reference resolves innermost-out").
type scope struct {
	vars map[string]uint32
}

// loopFrame tracks one labelled loop's exit/continue/redo PCs so that
// `last`/`next`/`redo` (possibly labelled, reaching through nested
// loops) can be resolved as plain jumps at compile time.
type loopFrame struct {
	label string

	// Forward-fixups: instruction indices whose jump target must be
	// patched once the loop's exit/continue/redo PCs are known.
	exitFixups  []int
	nextFixups  []int
	redoFixups  []int
	bodyStartPC int // the redo target: re-run the body without re-testing cond
}

// subCompiler compiles exactly one CodeUnit: the top-level program, a
// named sub, an anonymous sub, or an `eval STRING` child. It owns its
// own register allocator; registers never cross a CodeUnit boundary
// except via the fixed capture slots (spec §3.3).
type subCompiler struct {
	unit  *CodeUnit
	outer *subCompiler // enclosing compile, for free-lexical capture resolution

	scopes  []*scope
	nextReg uint32

	loopStack []*loopFrame

	// declaredAll flattens every `my`/`our` declaration made anywhere in
	// this sub's compile, for eval-STRING lexical inheritance (spec
	// §4.2: "a declared-variables-across-all-scopes map is maintained
	// ... for eval STRING inheritance").
	declaredAll map[string]uint32

	captureSet   map[string]uint32 // name -> this sub's capture register
	captureOrder []string

	labels       map[string]int       // label name -> PC, for goto
	pendingGotos []pendingLabelUse    // forward gotos awaiting resolution
}

func newSubCompiler(unit *CodeUnit, outer *subCompiler) *subCompiler {
	c := &subCompiler{
		unit:        unit,
		outer:       outer,
		declaredAll: make(map[string]uint32),
		captureSet:  make(map[string]uint32),
		labels:      make(map[string]int),
	}
	c.nextReg = regFirstLocal // 0=codeunit, 1=@_, 2=context tag
	c.pushScope()
	return c
}

// resolveName resolves a bare variable name ("$x") to a register: a
// local/parameter binding, an already-assigned capture slot, or not
// found at all (meaning it's a package global).
func (c *subCompiler) resolveName(name string) (reg uint32, isCaptured bool, found bool) {
	if r, ok := c.lookupLocal(name); ok {
		return r, false, true
	}
	if r, ok := c.captureSet[name]; ok {
		return r, true, true
	}
	return 0, false, false
}

func (c *subCompiler) pushScope() { c.scopes = append(c.scopes, &scope{vars: map[string]uint32{}}) }

func (c *subCompiler) popScope() { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *subCompiler) allocReg() uint32 {
	r := c.nextReg
	c.nextReg++
	if c.nextReg > c.unit.MaxRegisters {
		c.unit.MaxRegisters = c.nextReg
	}
	return r
}

// declare binds name to a freshly allocated register in the innermost
// scope (the `my` insertion rule). The register is not yet backed by a
// runtime value; callers must follow up with a sigil-appropriate
// initializer (declareScalar/declareArray/declareHash) before the
// register is read or assigned into.
func (c *subCompiler) declare(name string) uint32 {
	reg := c.allocReg()
	c.scopes[len(c.scopes)-1].vars[name] = reg
	c.declaredAll[name] = reg
	return reg
}

// declareScalar declares name and emits the fresh undef Scalar every
// `my $x` needs backing it, so later SCALAR_ASSIGN/compound-assign
// opcodes always find an already-bound Cell to mutate in place.
func (c *subCompiler) declareScalar(name string) uint32 {
	reg := c.declare(name)
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_UNDEF, Dst: reg})
	return reg
}

func (c *subCompiler) declareArray(name string) uint32 {
	reg := c.declare(name)
	c.emit(opcodes.Instruction{Op: opcodes.OP_ARR_NEW, Dst: reg})
	return reg
}

func (c *subCompiler) declareHash(name string) uint32 {
	reg := c.declare(name)
	c.emit(opcodes.Instruction{Op: opcodes.OP_HASH_NEW, Dst: reg})
	return reg
}

// declareBySigil dispatches to the right declareX helper for v's sigil.
func (c *subCompiler) declareBySigil(v *ast.VarRef) uint32 {
	switch v.Sigil {
	case ast.SigilArray:
		return c.declareArray(varKey(v))
	case ast.SigilHash:
		return c.declareHash(varKey(v))
	default:
		return c.declareScalar(varKey(v))
	}
}

// bindExisting records name -> reg without allocating (used for capture
// slots, which are pre-allocated before the body is compiled).
func (c *subCompiler) bindExisting(name string, reg uint32) {
	c.scopes[len(c.scopes)-1].vars[name] = reg
	c.declaredAll[name] = reg
}

func (c *subCompiler) lookupLocal(name string) (uint32, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if r, ok := c.scopes[i].vars[name]; ok {
			return r, true
		}
	}
	return 0, false
}

// resolveOuter reports whether name is reachable from this sub's
// enclosing lexical chain, without mutating anything — used by the
// free-variable scan (closures.go) before capture slots are allocated.
func (c *subCompiler) resolveOuter(name string) bool {
	if c == nil {
		return false
	}
	if _, ok := c.lookupLocal(name); ok {
		return true
	}
	if _, ok := c.captureSet[name]; ok {
		return true
	}
	return c.outer.resolveOuter(name)
}

// reserveCapture pre-allocates a fixed capture-slot register for name,
// used before compiling an inner sub's body so registers 3..3+N-1 are
// laid out exactly as spec §3.3 requires.
func (c *subCompiler) reserveCapture(name string) uint32 {
	if r, ok := c.captureSet[name]; ok {
		return r
	}
	reg := c.allocReg()
	c.captureSet[name] = reg
	c.captureOrder = append(c.captureOrder, name)
	c.bindExisting(name, reg)
	return reg
}

func (c *subCompiler) emit(inst opcodes.Instruction) int {
	c.unit.Instructions = append(c.unit.Instructions, inst)
	return len(c.unit.Instructions) - 1
}

func (c *subCompiler) here() int { return len(c.unit.Instructions) }

func (c *subCompiler) patchJumpTarget(idx int, target int) {
	c.unit.Instructions[idx].A = uint32(int32(target))
}

func (c *subCompiler) pushLoop(label string) *loopFrame {
	lf := &loopFrame{label: label, bodyStartPC: c.here()}
	c.loopStack = append(c.loopStack, lf)
	return lf
}

func (c *subCompiler) popLoop() { c.loopStack = c.loopStack[:len(c.loopStack)-1] }

// findLoop resolves an optionally-labelled last/next/redo/goto target:
// the innermost loop frame when label is "", else the named one,
// searching outward (it may cross intervening unlabelled loops).
func (c *subCompiler) findLoop(label string) *loopFrame {
	for i := len(c.loopStack) - 1; i >= 0; i-- {
		if label == "" || c.loopStack[i].label == label {
			return c.loopStack[i]
		}
	}
	return nil
}
