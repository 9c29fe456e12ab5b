package compiler

import (
	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

// freeVarScanner walks a sub body tracking its own `my`-declared names
// per lexical block, flagging any variable reference that isn't locally
// bound but does resolve in the enclosing compile — a free lexical that
// needs a capture slot (spec §3.3/§4.2).
type freeVarScanner struct {
	outer *subCompiler
	bound []map[string]bool
	seen  map[string]bool
	free  []string
}

func scanFreeVars(body *ast.Block, outer *subCompiler) []string {
	s := &freeVarScanner{outer: outer, seen: map[string]bool{}}
	s.pushScope()
	s.walkBlock(body)
	s.popScope()
	return s.free
}

func (s *freeVarScanner) pushScope() { s.bound = append(s.bound, map[string]bool{}) }
func (s *freeVarScanner) popScope()  { s.bound = s.bound[:len(s.bound)-1] }

func (s *freeVarScanner) declare(name string) {
	s.bound[len(s.bound)-1][name] = true
}

func (s *freeVarScanner) isBound(name string) bool {
	for i := len(s.bound) - 1; i >= 0; i-- {
		if s.bound[i][name] {
			return true
		}
	}
	return false
}

func (s *freeVarScanner) use(name string) {
	if s.isBound(name) || s.seen[name] {
		return
	}
	if s.outer.resolveOuter(name) {
		s.seen[name] = true
		s.free = append(s.free, name)
	}
}

func (s *freeVarScanner) walkBlock(b *ast.Block) {
	if b == nil {
		return
	}
	s.pushScope()
	for _, stmt := range b.Stmts {
		s.walkStmt(stmt)
	}
	s.popScope()
}

func (s *freeVarScanner) walkStmt(n ast.Node) {
	switch stmt := n.(type) {
	case *ast.ExprStmt:
		s.walkExpr(stmt.Expr)
	case *ast.Block:
		s.walkBlock(stmt)
	case *ast.VarDecl:
		for _, t := range stmt.Targets {
			if v, ok := t.(*ast.VarRef); ok {
				s.declare(varKey(v))
			}
		}
	case *ast.IfStmt:
		s.walkExpr(stmt.Cond)
		s.walkBlock(stmt.Then)
		for i := range stmt.ElseIf {
			s.walkExpr(stmt.ElseIf[i].Cond)
			s.walkBlock(stmt.ElseIf[i].Then)
		}
		s.walkBlock(stmt.Else)
	case *ast.WhileStmt:
		s.walkExpr(stmt.Cond)
		s.walkBlock(stmt.Body)
		s.walkBlock(stmt.Continue)
	case *ast.ForStmt:
		s.pushScope()
		if stmt.Init != nil {
			s.walkStmt(stmt.Init)
		}
		s.walkExpr(stmt.Cond)
		s.walkBlock(stmt.Body)
		s.walkExpr(stmt.Post)
		s.popScope()
	case *ast.ForeachStmt:
		s.pushScope()
		if stmt.Var != nil {
			s.declare(varKey(stmt.Var))
		}
		s.walkExpr(stmt.List)
		s.walkBlock(stmt.Body)
		s.popScope()
	case *ast.LoopCtl:
	case *ast.LabelStmt:
		s.walkStmt(stmt.Stmt)
	case *ast.ReturnStmt:
		s.walkExpr(stmt.Value)
	case *ast.SubDecl, *ast.AnonSub:
		// Nested closures resolve their own free variables against this
		// sub independently; not scanned transitively here.
	case *ast.PackageStmt:
	case *ast.EvalBlock:
		s.walkBlock(stmt.Body)
	case *ast.DieExpr:
		s.walkExpr(stmt.Value)
	default:
		s.walkExpr(n)
	}
}

func (s *freeVarScanner) walkExpr(n ast.Node) {
	switch e := n.(type) {
	case nil:
	case *ast.VarRef:
		s.use(varKey(e))
	case *ast.ElemRef:
		s.walkExpr(e.Container)
		for _, k := range e.Keys {
			s.walkExpr(k)
		}
	case *ast.DerefExpr:
		s.walkExpr(e.Target)
	case *ast.GlobRef:
		s.walkExpr(e.Target)
	case *ast.BinaryExpr:
		s.walkExpr(e.Left)
		s.walkExpr(e.Right)
	case *ast.UnaryExpr:
		s.walkExpr(e.Operand)
	case *ast.IncDecExpr:
		s.walkExpr(e.Operand)
	case *ast.TernaryExpr:
		s.walkExpr(e.Cond)
		s.walkExpr(e.Then)
		s.walkExpr(e.Else)
	case *ast.Assign:
		s.walkExpr(e.Value)
		if vd, ok := e.Target.(*ast.VarDecl); ok {
			s.walkStmt(vd)
		} else {
			s.walkExpr(e.Target)
		}
	case *ast.ListLit:
		for _, el := range e.Elems {
			s.walkExpr(el)
		}
	case *ast.RangeLit:
		s.walkExpr(e.Lo)
		s.walkExpr(e.Hi)
	case *ast.StringLit:
		for _, part := range e.Interpolated {
			s.walkExpr(part)
		}
	case *ast.Call:
		s.walkExpr(e.Callee)
		for _, a := range e.Args {
			s.walkExpr(a)
		}
	case *ast.MethodCall:
		s.walkExpr(e.Invocant)
		s.walkExpr(e.MethodExpr)
		for _, a := range e.Args {
			s.walkExpr(a)
		}
	case *ast.RefExpr:
		s.walkExpr(e.Target)
	case *ast.BlessExpr:
		s.walkExpr(e.Ref)
		s.walkExpr(e.Class)
	case *ast.IsaExpr:
		s.walkExpr(e.Target)
		s.walkExpr(e.Class)
	case *ast.EvalBlock:
		s.walkBlock(e.Body)
	case *ast.EvalString:
		s.walkExpr(e.Source)
	case *ast.DieExpr:
		s.walkExpr(e.Value)
	}
}

// compileAnonSub lowers `sub { ... }` to a CREATE_CLOSURE emission over
// a freshly compiled child CodeUnit, scanning the body for free
// lexicals first so the child's capture slots (registers 3..3+N-1) are
// laid out before any of its own locals are allocated.
func (c *subCompiler) compileAnonSub(e *ast.AnonSub) (uint32, error) {
	childUnit := newCodeUnit(c.unit.SourceName, c.unit.Pragmas.clone())
	child := newSubCompiler(childUnit, c)

	freeVars := scanFreeVars(e.Body, c)
	for _, name := range freeVars {
		child.reserveCapture(name)
	}
	for _, name := range freeVars {
		childUnit.Captured = append(childUnit.Captured, CapturedSlot{Name: name, Reg: child.captureSet[name]})
	}

	child.pushScope()
	bodyReg, err := child.compileBlockExpr(e.Body, ast.ContextList)
	child.popScope()
	if err != nil {
		return 0, err
	}
	if err := child.resolvePendingLabels(); err != nil {
		return 0, err
	}
	child.emit(opcodes.Instruction{Op: opcodes.OP_RETURN, AKind: opcodes.OperandReg, A: bodyReg})

	codeConst := c.unit.addConst(values.NewCode("", childUnit, nil))
	capRegs := c.emitCaptureRegs(freeVars)
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_CREATE_CLOSURE, AKind: opcodes.OperandConst, BKind: opcodes.OperandReg, A: codeConst, B: capRegs, Dst: dst})
	return dst, nil
}
