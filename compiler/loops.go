package compiler

import (
	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
)

// compileWhile lowers both `while` and `until` (negated-condition
// `while`). `next` resumes at the continue block (or the condition
// test itself, absent one); `redo` re-enters the body without
// re-testing the condition (spec §4.2's loop-control semantics).
func (c *subCompiler) compileWhile(s *ast.WhileStmt) error {
	lf := c.pushLoop(s.Label)
	testPC := c.here()
	condReg, err := c.compileExpr(s.Cond, ast.ContextScalar)
	if err != nil {
		return err
	}
	if s.Until {
		neg := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_NOT, AKind: opcodes.OperandReg, A: condReg, Dst: neg})
		condReg = neg
	}
	exitJump := c.emit(opcodes.Instruction{Op: opcodes.OP_JMPF, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, B: condReg})
	lf.bodyStartPC = c.here()
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	contPC := c.here()
	if s.Continue != nil {
		if err := c.compileBlock(s.Continue); err != nil {
			return err
		}
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC, A: uint32(testPC)})
	exitPC := c.here()
	c.patchJumpTarget(exitJump, exitPC)
	c.finishLoop(lf, contPC, exitPC)
	return nil
}

// compileFor lowers the C-style three-clause loop.
func (c *subCompiler) compileFor(s *ast.ForStmt) error {
	c.pushScope()
	defer c.popScope()
	if s.Init != nil {
		if err := c.compileForClause(s.Init); err != nil {
			return err
		}
	}
	lf := c.pushLoop(s.Label)
	testPC := c.here()
	var exitJump int
	hasExit := s.Cond != nil
	if hasExit {
		condReg, err := c.compileExpr(s.Cond, ast.ContextScalar)
		if err != nil {
			return err
		}
		exitJump = c.emit(opcodes.Instruction{Op: opcodes.OP_JMPF, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, B: condReg})
	}
	lf.bodyStartPC = c.here()
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	contPC := c.here()
	if s.Post != nil {
		if err := c.compileForClause(s.Post); err != nil {
			return err
		}
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC, A: uint32(testPC)})
	exitPC := c.here()
	if hasExit {
		c.patchJumpTarget(exitJump, exitPC)
	}
	c.finishLoop(lf, contPC, exitPC)
	return nil
}

func (c *subCompiler) compileForClause(n ast.Node) error {
	if vd, ok := n.(*ast.VarDecl); ok {
		return c.compileVarDecl(vd, nil)
	}
	_, err := c.compileExpr(n, ast.ContextVoid)
	return err
}

// compileForeach lowers `for`/`foreach` over a list. The loop variable
// is rebound (not copy-assigned) to a fresh alias of each element in
// turn, so mutating it inside the body mutates the source list element
// (spec §3.1's aliasing invariant extended to foreach).
func (c *subCompiler) compileForeach(s *ast.ForeachStmt) error {
	c.pushScope()
	defer c.popScope()

	listReg, err := c.compileExpr(s.List, ast.ContextList)
	if err != nil {
		return err
	}
	iterReg := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_ITER_CREATE, AKind: opcodes.OperandReg, A: listReg, Dst: iterReg})

	var varReg uint32
	if s.Var != nil && s.IsMy {
		varReg = c.declareScalar(varKey(s.Var))
	} else if s.Var != nil {
		varReg, err = c.compileVarRefRead(s.Var)
		if err != nil {
			return err
		}
		c.bindExisting(varKey(s.Var), varReg)
	} else {
		varReg, err = c.loadGlobalScalar("_")
		if err != nil {
			return err
		}
		c.bindExisting("$_", varReg)
	}

	lf := c.pushLoop(s.Label)
	testPC := c.here()
	exitJump := c.emit(opcodes.Instruction{Op: opcodes.OP_ITER_NEXT_OR_EXIT, AKind: opcodes.OperandReg, A: iterReg, BKind: opcodes.OperandPC, Dst: varReg})
	lf.bodyStartPC = c.here()
	if err := c.compileBlock(s.Body); err != nil {
		return err
	}
	contPC := c.here()
	c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC, A: uint32(testPC)})
	exitPC := c.here()
	c.unit.Instructions[exitJump].B = uint32(exitPC)
	c.finishLoop(lf, contPC, exitPC)
	return nil
}

func (c *subCompiler) finishLoop(lf *loopFrame, contPC, exitPC int) {
	for _, idx := range lf.nextFixups {
		c.patchJumpTarget(idx, contPC)
	}
	for _, idx := range lf.redoFixups {
		c.patchJumpTarget(idx, lf.bodyStartPC)
	}
	for _, idx := range lf.exitFixups {
		c.patchJumpTarget(idx, exitPC)
	}
	c.popLoop()
}
