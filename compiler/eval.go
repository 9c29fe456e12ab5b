package compiler

import (
	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
)

// compileBlockExpr compiles a block's statements for their side effects
// except the last, which is compiled as an expression in ctx and
// supplies the block's value — the semantics `eval { ... }` needs (its
// result is the last expression evaluated, spec §4.4).
func (c *subCompiler) compileBlockExpr(b *ast.Block, ctx ast.Context) (uint32, error) {
	if len(b.Stmts) == 0 {
		r := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_UNDEF, Dst: r})
		return r, nil
	}
	for _, stmt := range b.Stmts[:len(b.Stmts)-1] {
		if err := c.compileStmt(stmt); err != nil {
			return 0, err
		}
	}
	last := b.Stmts[len(b.Stmts)-1]
	if es, ok := last.(*ast.ExprStmt); ok {
		return c.compileExpr(es.Expr, ctx)
	}
	if err := c.compileStmt(last); err != nil {
		return 0, err
	}
	r := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_UNDEF, Dst: r})
	return r, nil
}

// compileEvalBlock lowers `eval { ... }` to an EVAL_TRY/EVAL_CATCH pair
// (spec §4.4): on success the block's value lands in dst and $@ is
// cleared; on exception control lands at the catch PC, dst becomes
// undef, and $@ holds the exception value.
func (c *subCompiler) compileEvalBlock(e *ast.EvalBlock, ctx ast.Context) (uint32, error) {
	dst := c.allocReg()
	tryIdx := c.emit(opcodes.Instruction{Op: opcodes.OP_EVAL_TRY, AKind: opcodes.OperandPC})

	c.pushScope()
	bodyReg, err := c.compileBlockExpr(e.Body, ctx)
	c.popScope()
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: bodyReg, Dst: dst})
	c.emit(opcodes.Instruction{Op: opcodes.OP_EVAL_END})
	skipCatch := c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC})

	catchPC := c.here()
	c.patchJumpTarget(tryIdx, catchPC)
	c.emit(opcodes.Instruction{Op: opcodes.OP_EVAL_CATCH, Dst: dst})

	endPC := c.here()
	c.patchJumpTarget(skipCatch, endPC)
	return dst, nil
}

// compileEvalString lowers `eval STRING`: the source expression is
// evaluated, then handed to OP_EVAL_STRING, which parses and compiles
// it at run time under the enclosing package and pragma state (spec
// §4.4). Only package globals are visible inside the evaluated text —
// the enclosing sub's lexicals are not threaded through, a scope
// reduction from full dynamic re-compilation with lexical inheritance.
func (c *subCompiler) compileEvalString(e *ast.EvalString, ctx ast.Context) (uint32, error) {
	srcReg, err := c.compileExpr(e.Source, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	tryIdx := c.emit(opcodes.Instruction{Op: opcodes.OP_EVAL_TRY, AKind: opcodes.OperandPC})

	resReg := c.allocReg()
	c.emit(opcodes.Instruction{
		Op: opcodes.OP_EVAL_STRING,
		A:  srcReg, AKind: opcodes.OperandReg,
		B: uint32(ctx), BKind: opcodes.OperandImm,
		Dst: resReg,
	})
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: resReg, Dst: dst})
	c.emit(opcodes.Instruction{Op: opcodes.OP_EVAL_END})
	skipCatch := c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC})

	catchPC := c.here()
	c.patchJumpTarget(tryIdx, catchPC)
	c.emit(opcodes.Instruction{Op: opcodes.OP_EVAL_CATCH, Dst: dst})

	endPC := c.here()
	c.patchJumpTarget(skipCatch, endPC)
	return dst, nil
}
