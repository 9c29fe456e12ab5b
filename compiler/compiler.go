package compiler

import (
	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

// Compile lowers a parsed program to its top-level CodeUnit under the
// given starting pragma state (spec §4.1's single entrypoint into the
// compiler). Nested CodeUnits for named/anonymous subs and eval-STRING
// children are reached transitively and live only in the returned
// unit's constant pool.
func Compile(prog *ast.Program, pragmas PragmaSnapshot) (*CodeUnit, error) {
	unit := newCodeUnit("<main>", pragmas)
	sc := newSubCompiler(unit, nil)

	// The top level behaves like an implicit enclosing block: every
	// statement but the last runs for effect, and the last — when it's
	// a bare expression — supplies the program's result, the same
	// "last expression wins" rule `eval { ... }` and a sub body use
	// (spec §4.4's result convention extended to the whole program).
	for i, stmt := range prog.Stmts {
		if i == len(prog.Stmts)-1 {
			if es, ok := stmt.(*ast.ExprStmt); ok {
				reg, err := sc.compileExpr(es.Expr, ast.ContextList)
				if err != nil {
					return nil, err
				}
				if err := sc.resolvePendingLabels(); err != nil {
					return nil, err
				}
				sc.emit(opcodes.Instruction{Op: opcodes.OP_RETURN, AKind: opcodes.OperandReg, A: reg})
				return unit, nil
			}
		}
		if err := sc.compileStmt(stmt); err != nil {
			return nil, err
		}
	}
	if err := sc.resolvePendingLabels(); err != nil {
		return nil, err
	}
	sc.emit(opcodes.Instruction{Op: opcodes.OP_RETURN})
	return unit, nil
}

// pendingLabel tracks a forward `goto LABEL` awaiting the label's PC.
type pendingLabelUse struct {
	name string
	idx  int
}

func (c *subCompiler) resolvePendingLabels() error {
	for _, use := range c.pendingGotos {
		pc, ok := c.labels[use.name]
		if !ok {
			return errAt(ast.Position{}, "Can't find label %s", use.name)
		}
		c.patchJumpTarget(use.idx, pc)
	}
	return nil
}

func (c *subCompiler) note(pos ast.Position, idx int) {
	c.unit.PCToSource[idx] = pos
}

// compileStmt dispatches one statement node (spec §4.2's per-statement
// compilation rules).
func (c *subCompiler) compileStmt(n ast.Node) error {
	switch s := n.(type) {
	case *ast.ExprStmt:
		_, err := c.compileExpr(s.Expr, ast.ContextVoid)
		return err

	case *ast.Block:
		return c.compileBlock(s)

	case *ast.VarDecl:
		return c.compileVarDecl(s, nil)

	case *ast.IfStmt:
		return c.compileIf(s)

	case *ast.WhileStmt:
		return c.compileWhile(s)

	case *ast.ForStmt:
		return c.compileFor(s)

	case *ast.ForeachStmt:
		return c.compileForeach(s)

	case *ast.LoopCtl:
		return c.compileLoopCtl(s)

	case *ast.LabelStmt:
		return c.compileLabelStmt(s)

	case *ast.ReturnStmt:
		return c.compileReturn(s)

	case *ast.SubDecl:
		return c.compileSubDecl(s)

	case *ast.PackageStmt:
		c.unit.Pragmas.Package = s.Name
		return nil

	case *ast.EvalBlock:
		_, err := c.compileExpr(s, ast.ContextVoid)
		return err

	case *ast.DieExpr:
		_, err := c.compileExpr(s, ast.ContextVoid)
		return err

	default:
		_, err := c.compileExpr(n, ast.ContextVoid)
		return err
	}
}

func (c *subCompiler) compileBlock(b *ast.Block) error {
	c.pushScope()
	defer c.popScope()
	for _, stmt := range b.Stmts {
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *subCompiler) compileIf(s *ast.IfStmt) error {
	condReg, err := c.compileExpr(s.Cond, ast.ContextScalar)
	if err != nil {
		return err
	}
	jf := c.emit(opcodes.Instruction{Op: opcodes.OP_JMPF, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, A: 0, B: condReg})
	if err := c.compileBlock(s.Then); err != nil {
		return err
	}
	var jend []int
	jend = append(jend, c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC}))
	c.patchJumpTarget(jf, c.here())

	for i := range s.ElseIf {
		ei := &s.ElseIf[i]
		condReg, err = c.compileExpr(ei.Cond, ast.ContextScalar)
		if err != nil {
			return err
		}
		jf = c.emit(opcodes.Instruction{Op: opcodes.OP_JMPF, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, B: condReg})
		if err := c.compileBlock(ei.Then); err != nil {
			return err
		}
		jend = append(jend, c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC}))
		c.patchJumpTarget(jf, c.here())
	}

	if s.Else != nil {
		if err := c.compileBlock(s.Else); err != nil {
			return err
		}
	}
	end := c.here()
	for _, idx := range jend {
		c.patchJumpTarget(idx, end)
	}
	return nil
}

func (c *subCompiler) compileReturn(s *ast.ReturnStmt) error {
	if s.Value == nil {
		undef := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_UNDEF, Dst: undef})
		c.emit(opcodes.Instruction{Op: opcodes.OP_RETURN, AKind: opcodes.OperandReg, A: undef})
		return nil
	}
	reg, err := c.compileExpr(s.Value, ast.ContextList)
	if err != nil {
		return err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_RETURN, AKind: opcodes.OperandReg, A: reg})
	return nil
}

func (c *subCompiler) compileLabelStmt(s *ast.LabelStmt) error {
	switch inner := s.Stmt.(type) {
	case *ast.WhileStmt:
		if inner.Label == "" {
			inner.Label = s.Name
		}
		return c.compileStmt(inner)
	case *ast.ForStmt:
		if inner.Label == "" {
			inner.Label = s.Name
		}
		return c.compileStmt(inner)
	case *ast.ForeachStmt:
		if inner.Label == "" {
			inner.Label = s.Name
		}
		return c.compileStmt(inner)
	case *ast.Block:
		// A labelled bare block behaves as a loop that runs exactly once
		// (`last`/`next`/`redo` all apply to it).
		lf := c.pushLoop(s.Name)
		c.labels[s.Name] = c.here()
		if err := c.compileBlock(inner); err != nil {
			return err
		}
		nextPC := c.here()
		exitPC := c.here()
		for _, idx := range lf.nextFixups {
			c.patchJumpTarget(idx, nextPC)
		}
		for _, idx := range lf.redoFixups {
			c.patchJumpTarget(idx, lf.bodyStartPC)
		}
		for _, idx := range lf.exitFixups {
			c.patchJumpTarget(idx, exitPC)
		}
		c.popLoop()
		return nil
	default:
		c.labels[s.Name] = c.here()
		return c.compileStmt(s.Stmt)
	}
}

func (c *subCompiler) compileLoopCtl(s *ast.LoopCtl) error {
	switch s.Kind {
	case ast.CtlGoto:
		idx := c.emit(opcodes.Instruction{Op: opcodes.OP_GOTO, AKind: opcodes.OperandPC})
		if pc, ok := c.labels[s.Label]; ok {
			c.patchJumpTarget(idx, pc)
		} else {
			c.pendingGotos = append(c.pendingGotos, pendingLabelUse{name: s.Label, idx: idx})
		}
		return nil
	}

	lf := c.findLoop(s.Label)
	if lf == nil {
		return errAt(s.Pos(), "Can't \"%s\" outside a loop block", loopCtlName(s.Kind))
	}
	switch s.Kind {
	case ast.CtlLast:
		idx := c.emit(opcodes.Instruction{Op: opcodes.OP_LAST, AKind: opcodes.OperandPC})
		lf.exitFixups = append(lf.exitFixups, idx)
	case ast.CtlNext:
		idx := c.emit(opcodes.Instruction{Op: opcodes.OP_NEXT, AKind: opcodes.OperandPC})
		lf.nextFixups = append(lf.nextFixups, idx)
	case ast.CtlRedo:
		c.emit(opcodes.Instruction{Op: opcodes.OP_REDO, AKind: opcodes.OperandPC, A: uint32(lf.bodyStartPC)})
	}
	return nil
}

func (c *subCompiler) compileVarDecl(s *ast.VarDecl, initFromList []uint32) error {
	for _, t := range s.Targets {
		switch target := t.(type) {
		case *ast.VarRef:
			switch s.Kind {
			case ast.DeclMy, ast.DeclOur:
				c.declareBySigil(target)
			case ast.DeclLocal:
				if _, err := c.compileLocalSave(target); err != nil {
					return err
				}
			}
		case *ast.ElemRef:
			if s.Kind == ast.DeclLocal {
				if err := c.compileLocalSaveElem(target); err != nil {
					return err
				}
			}
		case *ast.ListLit:
			nested := &ast.VarDecl{Kind: s.Kind, Targets: target.Elems}
			if err := c.compileVarDecl(nested, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func varKey(v *ast.VarRef) string { return string(v.Sigil) + v.Name }

func loopCtlName(k ast.LoopCtlKind) string {
	switch k {
	case ast.CtlLast:
		return "last"
	case ast.CtlNext:
		return "next"
	case ast.CtlRedo:
		return "redo"
	default:
		return "goto"
	}
}

// compileLocalSave pushes the current global's payload on the dynamic
// stack so it is restored when this lexical scope unwinds (spec §4.5's
// dynamic-variable stack), returning the persistent global register so
// the caller can assign a new value into it.
func (c *subCompiler) compileLocalSave(v *ast.VarRef) (uint32, error) {
	reg, err := c.loadGlobalScalar(v.Name)
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_PUSH_LOCAL, AKind: opcodes.OperandReg, A: reg})
	return reg, nil
}

func (c *subCompiler) compileLocalSaveElem(e *ast.ElemRef) error {
	reg, err := c.compileExpr(e, ast.ContextScalar)
	if err != nil {
		return err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_PUSH_LOCAL, AKind: opcodes.OperandReg, A: reg})
	return nil
}

func (c *subCompiler) loadGlobalScalar(name string) (uint32, error) {
	dst := c.allocReg()
	nameIdx := c.unit.addString(c.qualify(name))
	c.emit(opcodes.Instruction{Op: opcodes.OP_GLOBAL_GET_SCALAR, AKind: opcodes.OperandString, A: nameIdx, Dst: dst})
	return dst, nil
}

func (c *subCompiler) compileSubDecl(s *ast.SubDecl) error {
	childUnit := newCodeUnit(c.unit.SourceName, c.unit.Pragmas.clone())
	childUnit.Name = s.Name
	child := newSubCompiler(childUnit, c)

	freeVars := scanFreeVars(s.Body, c)
	for _, name := range freeVars {
		child.reserveCapture(name)
	}
	for _, name := range freeVars {
		childUnit.Captured = append(childUnit.Captured, CapturedSlot{Name: name, Reg: child.captureSet[name]})
	}

	child.pushScope()
	bodyReg, err := child.compileBlockExpr(s.Body, ast.ContextList)
	child.popScope()
	if err != nil {
		return err
	}
	if err := child.resolvePendingLabels(); err != nil {
		return err
	}
	child.emit(opcodes.Instruction{Op: opcodes.OP_RETURN, AKind: opcodes.OperandReg, A: bodyReg})

	codeConst := c.unit.addConst(values.NewCode(s.Name, childUnit, nil))
	capRegs := c.emitCaptureRegs(freeVars)
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_CREATE_CLOSURE, AKind: opcodes.OperandConst, BKind: opcodes.OperandReg, A: codeConst, B: capRegs, Dst: dst})

	nameIdx := c.unit.addString(c.qualify(s.Name))
	c.emit(opcodes.Instruction{Op: opcodes.OP_GLOBAL_SET_CODE, AKind: opcodes.OperandString, BKind: opcodes.OperandReg, A: nameIdx, B: dst})
	return nil
}

// emitCaptureRegs materializes the free-variable registers into a
// contiguous run (via MOVE into fresh temps) and returns the first
// temp's register; the VM reads len(freeVars) registers starting there.
// A sub with no free variables returns 0 (unused).
func (c *subCompiler) emitCaptureRegs(freeVars []string) uint32 {
	if len(freeVars) == 0 {
		return 0
	}
	first := uint32(0)
	for i, name := range freeVars {
		reg, _, found := c.resolveName(name)
		if !found {
			continue
		}
		tmp := c.allocReg()
		if i == 0 {
			first = tmp
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: reg, Dst: tmp})
	}
	return first
}
