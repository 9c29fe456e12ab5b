package compiler

import (
	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

// compileRegexLit loads a /pattern/flags literal as a regex-object
// scalar constant (spec §4.4: "compile pattern+flags to a regex-object
// scalar"). RE2 translation and regexp.Regexp compilation happen lazily
// in the runtime's RegexCache, the first time this pattern is matched.
func (c *subCompiler) compileRegexLit(e *ast.RegexLit) (uint32, error) {
	dst := c.allocReg()
	idx := c.unit.addConst(values.NewRegex(&values.RegexPayload{Source: e.Source, Flags: e.Flags}))
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_CONST, AKind: opcodes.OperandConst, A: idx, Dst: dst})
	return dst, nil
}

// compileMatch lowers `EXPR =~ PATTERN` to OP_MATCH. The subject is
// read-only here, unlike s/// which needs the persistent lvalue it
// writes a substituted string back into.
func (c *subCompiler) compileMatch(e *ast.MatchExpr) (uint32, error) {
	subjReg, err := c.compileExpr(e.Subject, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	patReg, err := c.compileExpr(e.Pattern, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MATCH, AKind: opcodes.OperandReg, A: subjReg, BKind: opcodes.OperandReg, B: patReg, Dst: dst})
	if e.Negate {
		c.emit(opcodes.Instruction{Op: opcodes.OP_NOT, AKind: opcodes.OperandReg, A: dst, Dst: dst})
	}
	return dst, nil
}

// compileSubst lowers `EXPR =~ s/PATTERN/REPLACEMENT/FLAGS` to OP_SUBST.
// Subject resolves through resolveScalarLValue, not a plain read, so a
// parenthesized reload like `($x = "a") =~ s/a/A/` mutates the very
// Scalar that assignment produced (spec §8 scenario 6's reloaded-lvalue
// contract) rather than a disposable copy.
func (c *subCompiler) compileSubst(e *ast.SubstExpr) (uint32, error) {
	lvalReg, err := c.resolveScalarLValue(e.Subject)
	if err != nil {
		return 0, err
	}
	patReg, err := c.compileExpr(e.Pattern, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	replIdx := c.unit.addConst(values.NewString(e.Replacement))
	replReg := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_CONST, AKind: opcodes.OperandConst, A: replIdx, Dst: replReg})
	// OP_SUBST rebinds its Dst register to the replacement count, so it
	// gets a second handle on the subject Scalar; the subject's own
	// register keeps pointing at the Scalar the substitution mutated.
	resReg := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: lvalReg, Dst: resReg})
	c.emit(opcodes.Instruction{Op: opcodes.OP_SUBST, AKind: opcodes.OperandReg, A: patReg, BKind: opcodes.OperandReg, B: replReg, Dst: resReg})
	if e.Negate {
		c.emit(opcodes.Instruction{Op: opcodes.OP_NOT, AKind: opcodes.OperandReg, A: resReg, Dst: resReg})
	}
	return resReg, nil
}
