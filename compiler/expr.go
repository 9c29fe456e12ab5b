package compiler

import (
	"strings"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

var binOpcode = map[string]opcodes.Opcode{
	"+": opcodes.OP_ADD, "-": opcodes.OP_SUB, "*": opcodes.OP_MUL, "/": opcodes.OP_DIV,
	"%": opcodes.OP_MOD, "**": opcodes.OP_POW, ".": opcodes.OP_CONCAT, "x": opcodes.OP_REPEAT,
	"==": opcodes.OP_NUM_EQ, "!=": opcodes.OP_NUM_NE, "<": opcodes.OP_NUM_LT, "<=": opcodes.OP_NUM_LE,
	">": opcodes.OP_NUM_GT, ">=": opcodes.OP_NUM_GE, "<=>": opcodes.OP_NUM_CMP,
	"eq": opcodes.OP_STR_EQ, "ne": opcodes.OP_STR_NE, "lt": opcodes.OP_STR_LT, "le": opcodes.OP_STR_LE,
	"gt": opcodes.OP_STR_GT, "ge": opcodes.OP_STR_GE, "cmp": opcodes.OP_STR_CMP,
	"&": opcodes.OP_BIT_AND, "|": opcodes.OP_BIT_OR, "^": opcodes.OP_BIT_XOR,
	"<<": opcodes.OP_SHL, ">>": opcodes.OP_SHR, "xor": opcodes.OP_LOGICAL_XOR,
}

// compileExpr lowers one expression node, returning the register holding
// its result. Registers hold generic values.Value handles; an opcode
// that needs a narrower shape (scalar, list, ...) widens/collapses via
// the Value interface at execution time, which is why this function
// rarely needs to special-case ctx beyond the call/eval boundary (spec
// §4.2: "context is a property of the consumer, realized by the shared
// Value interface, not a distinct code path per context").
func (c *subCompiler) compileExpr(n ast.Node, ctx ast.Context) (uint32, error) {
	switch e := n.(type) {
	case wrapReg:
		return e.reg, nil

	case *ast.IntLit:
		dst := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_INT, AKind: opcodes.OperandImm, A: uint32(int32(e.Value)), Dst: dst})
		return dst, nil

	case *ast.FloatLit:
		dst := c.allocReg()
		idx := c.unit.addConst(values.NewFloat(e.Value))
		c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_CONST, AKind: opcodes.OperandConst, A: idx, Dst: dst})
		return dst, nil

	case *ast.StringLit:
		if e.Interpolated == nil {
			dst := c.allocReg()
			idx := c.unit.addConst(values.NewString(e.Value))
			c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_CONST, AKind: opcodes.OperandConst, A: idx, Dst: dst})
			return dst, nil
		}
		return c.compileInterpolated(e)

	case *ast.UndefLit:
		dst := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_UNDEF, Dst: dst})
		return dst, nil

	case *ast.ListLit:
		first, count, err := c.compileContiguous(e.Elems, ast.ContextList)
		if err != nil {
			return 0, err
		}
		dst := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_LIST_FROM_REGS, AKind: opcodes.OperandReg, A: first, BKind: opcodes.OperandImm, B: uint32(count), Dst: dst})
		return dst, nil

	case *ast.RangeLit:
		loReg, err := c.compileExpr(e.Lo, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		hiReg, err := c.compileExpr(e.Hi, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		dst := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_RANGE_NEW, AKind: opcodes.OperandReg, A: loReg, BKind: opcodes.OperandReg, B: hiReg, Dst: dst})
		return dst, nil

	case *ast.VarRef:
		return c.compileVarRefRead(e)

	case *ast.ElemRef:
		return c.compileElemRead(e)

	case *ast.DerefExpr:
		return c.compileDeref(e, false)

	case *ast.GlobRef:
		return c.compileGlobRef(e)

	case *ast.BinaryExpr:
		return c.compileBinary(e)

	case *ast.UnaryExpr:
		return c.compileUnary(e)

	case *ast.IncDecExpr:
		return c.compileIncDec(e)

	case *ast.TernaryExpr:
		return c.compileTernary(e, ctx)

	case *ast.Assign:
		return c.compileAssign(e, ctx)

	case *ast.Call:
		return c.compileCall(e, ctx)

	case *ast.MethodCall:
		return c.compileMethodCall(e, ctx)

	case *ast.RefExpr:
		return c.compileRefOf(e)

	case *ast.BlessExpr:
		refReg, err := c.compileExpr(e.Ref, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		classReg, err := c.compileExpr(e.Class, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_BLESS, AKind: opcodes.OperandReg, A: refReg, BKind: opcodes.OperandReg, B: classReg, Dst: refReg})
		return refReg, nil

	case *ast.IsaExpr:
		targetReg, err := c.compileExpr(e.Target, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		classReg, err := c.compileExpr(e.Class, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		dst := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_ISA, AKind: opcodes.OperandReg, A: targetReg, BKind: opcodes.OperandReg, B: classReg, Dst: dst})
		return dst, nil

	case *ast.EvalBlock:
		return c.compileEvalBlock(e, ctx)

	case *ast.EvalString:
		return c.compileEvalString(e, ctx)

	case *ast.DieExpr:
		return c.compileDie(e)

	case *ast.AnonSub:
		return c.compileAnonSub(e)

	case *ast.RegexLit:
		return c.compileRegexLit(e)

	case *ast.MatchExpr:
		return c.compileMatch(e)

	case *ast.SubstExpr:
		return c.compileSubst(e)

	default:
		return 0, errAt(n.Pos(), "unsupported expression node %T", n)
	}
}

// compileContiguous compiles each node and copies its result into a
// fresh, contiguous register run, as the aggregate-building opcodes
// (LIST_FROM_REGS, MAKE_ARGS) require.
func (c *subCompiler) compileContiguous(nodes []ast.Node, ctx ast.Context) (uint32, int, error) {
	regs := make([]uint32, 0, len(nodes))
	for _, n := range nodes {
		r, err := c.compileExpr(n, ctx)
		if err != nil {
			return 0, 0, err
		}
		regs = append(regs, r)
	}
	if len(regs) == 0 {
		return c.allocReg(), 0, nil
	}
	first := uint32(0)
	for i, r := range regs {
		tmp := c.allocReg()
		if i == 0 {
			first = tmp
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: r, Dst: tmp})
	}
	return first, len(regs), nil
}

func (c *subCompiler) compileInterpolated(e *ast.StringLit) (uint32, error) {
	dst := c.allocReg()
	idx := c.unit.addConst(values.NewString(""))
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_CONST, AKind: opcodes.OperandConst, A: idx, Dst: dst})
	for _, part := range e.Interpolated {
		partReg, err := c.compileExpr(part, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		next := c.allocReg()
		c.emit(opcodes.Instruction{Op: opcodes.OP_CONCAT, AKind: opcodes.OperandReg, A: dst, BKind: opcodes.OperandReg, B: partReg, Dst: next})
		dst = next
	}
	return dst, nil
}

// compileVarRefRead resolves a bare $x/@a/%h/&f/*g reference: local
// (scope stack), captured (closure slot), or a package global.
func (c *subCompiler) compileVarRefRead(v *ast.VarRef) (uint32, error) {
	key := varKey(v)
	if reg, _, found := c.resolveName(key); found {
		return reg, nil
	}
	if c.unit.Pragmas.StrictVars && !punctuationGlobals[v.Name] && !strings.Contains(v.Name, "::") {
		return 0, errAt(v.Pos(), "Global symbol %q requires explicit package name", string(v.Sigil)+v.Name)
	}
	dst := c.allocReg()
	nameIdx := c.unit.addString(c.qualify(v.Name))
	var op opcodes.Opcode
	switch v.Sigil {
	case ast.SigilScalar:
		op = opcodes.OP_GLOBAL_GET_SCALAR
	case ast.SigilArray:
		op = opcodes.OP_GLOBAL_GET_ARRAY
	case ast.SigilHash:
		op = opcodes.OP_GLOBAL_GET_HASH
	case ast.SigilCode:
		op = opcodes.OP_GLOBAL_GET_CODE
	case ast.SigilGlob:
		op = opcodes.OP_GLOBAL_GET_GLOB
	default:
		op = opcodes.OP_GLOBAL_GET_SCALAR
	}
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandString, A: nameIdx, Dst: dst})
	return dst, nil
}

// compileContainer resolves the register holding the Array/Hash an
// ElemRef indexes into, autovivifying through reference chains when
// forWrite is set (spec §4.3's autovivification rule).
func (c *subCompiler) compileContainer(n ast.Node, isHash, forWrite bool) (uint32, error) {
	switch t := n.(type) {
	case *ast.DerefExpr:
		return c.compileDeref(t, forWrite)
	case *ast.ElemRef:
		// A chained subscript, e.g. $a[0][1]: the inner element holds a
		// reference that this level dereferences (with autoviv on write).
		scalarReg, err := c.compileElemRead(t)
		if err != nil {
			return 0, err
		}
		dst := c.allocReg()
		op := opcodes.OP_DEREF_ARRAY
		if isHash {
			op = opcodes.OP_DEREF_HASH
		}
		akind := opcodes.OperandReg
		b := uint32(0)
		if forWrite {
			b = 1
		}
		c.emit(opcodes.Instruction{Op: op, AKind: akind, A: scalarReg, BKind: opcodes.OperandImm, B: b, Dst: dst})
		return dst, nil
	default:
		return c.compileExpr(n, ast.ContextScalar)
	}
}

func (c *subCompiler) compileElemRead(e *ast.ElemRef) (uint32, error) {
	containerReg, err := c.compileContainer(e.Container, e.IsHash, false)
	if err != nil {
		return 0, err
	}
	if e.Sigil == ast.SigilArray {
		return c.compileSliceRead(e, containerReg)
	}
	keyReg, err := c.compileExpr(e.Keys[0], ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	op := opcodes.OP_ARR_GET
	if e.IsHash {
		op = opcodes.OP_HASH_GET
	}
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: containerReg, BKind: opcodes.OperandReg, B: keyReg, Dst: dst})
	return dst, nil
}

// compileSliceRead unrolls a multi-key slice (`@a[...]`/`@h{...}`) into
// per-element gets at compile time rather than a dedicated runtime
// slice opcode, since the key count is already static here.
func (c *subCompiler) compileSliceRead(e *ast.ElemRef, containerReg uint32) (uint32, error) {
	elemOp := opcodes.OP_ARR_GET
	if e.IsHash {
		elemOp = opcodes.OP_HASH_GET
	}
	regs := make([]uint32, 0, len(e.Keys))
	for _, k := range e.Keys {
		keyReg, err := c.compileExpr(k, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		r := c.allocReg()
		c.emit(opcodes.Instruction{Op: elemOp, AKind: opcodes.OperandReg, A: containerReg, BKind: opcodes.OperandReg, B: keyReg, Dst: r})
		regs = append(regs, r)
	}
	first := uint32(0)
	for i, r := range regs {
		tmp := c.allocReg()
		if i == 0 {
			first = tmp
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: r, Dst: tmp})
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_LIST_FROM_REGS, AKind: opcodes.OperandReg, A: first, BKind: opcodes.OperandImm, B: uint32(len(regs)), Dst: dst})
	return dst, nil
}

func (c *subCompiler) compileDeref(e *ast.DerefExpr, forWrite bool) (uint32, error) {
	targetReg, err := c.compileExpr(e.Target, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	b := uint32(0)
	if forWrite {
		b = 1
	}
	var op opcodes.Opcode
	switch e.Sigil {
	case ast.SigilScalar:
		op = opcodes.OP_DEREF_SCALAR_STRICT
		if !c.unit.Pragmas.StrictRefs {
			op = opcodes.OP_DEREF_SCALAR_NONSTRICT
		}
	case ast.SigilArray:
		op = opcodes.OP_DEREF_ARRAY
	case ast.SigilHash:
		op = opcodes.OP_DEREF_HASH
	case ast.SigilGlob:
		op = opcodes.OP_DEREF_GLOB
	default:
		op = opcodes.OP_DEREF_SCALAR_STRICT
	}
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: targetReg, BKind: opcodes.OperandImm, B: b, Dst: dst})
	return dst, nil
}

func (c *subCompiler) compileGlobRef(g *ast.GlobRef) (uint32, error) {
	dst := c.allocReg()
	if g.Target != nil {
		targetReg, err := c.compileExpr(g.Target, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_DEREF_GLOB, AKind: opcodes.OperandReg, A: targetReg, Dst: dst})
		return dst, nil
	}
	nameIdx := c.unit.addString(c.qualify(g.Name))
	c.emit(opcodes.Instruction{Op: opcodes.OP_GLOBAL_GET_GLOB, AKind: opcodes.OperandString, A: nameIdx, Dst: dst})
	return dst, nil
}

func (c *subCompiler) compileBinary(e *ast.BinaryExpr) (uint32, error) {
	switch e.Op {
	case "&&", "and":
		return c.compileAndOr(e, true)
	case "||", "or":
		return c.compileAndOr(e, false)
	case "//":
		return c.compileDefinedOr(e)
	}
	op, ok := binOpcode[e.Op]
	if !ok {
		return 0, errAt(e.Pos(), "unsupported binary operator %q", e.Op)
	}
	leftReg, err := c.compileExpr(e.Left, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	rightReg, err := c.compileExpr(e.Right, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: leftReg, BKind: opcodes.OperandReg, B: rightReg, Dst: dst})
	return dst, nil
}

// compileAndOr lowers `&&`/`and` (wantTrue=true) and `||`/`or`
// (wantTrue=false) to a short-circuiting jump sequence rather than a
// single opcode (spec §4.2: "the second operand is never evaluated
// unless the first operand's truth value requires it").
func (c *subCompiler) compileAndOr(e *ast.BinaryExpr, wantTrue bool) (uint32, error) {
	leftReg, err := c.compileExpr(e.Left, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: leftReg, Dst: dst})
	op := opcodes.OP_JMPF
	if !wantTrue {
		op = opcodes.OP_JMPT
	}
	shortCircuit := c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, B: dst})
	rightReg, err := c.compileExpr(e.Right, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: rightReg, Dst: dst})
	c.patchJumpTarget(shortCircuit, c.here())
	return dst, nil
}

func (c *subCompiler) compileDefinedOr(e *ast.BinaryExpr) (uint32, error) {
	leftReg, err := c.compileExpr(e.Left, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: leftReg, Dst: dst})
	skip := c.emit(opcodes.Instruction{Op: opcodes.OP_JMPDEF, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, B: dst})
	rightReg, err := c.compileExpr(e.Right, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: rightReg, Dst: dst})
	c.patchJumpTarget(skip, c.here())
	return dst, nil
}

func (c *subCompiler) compileUnary(e *ast.UnaryExpr) (uint32, error) {
	if e.Op == "\\" {
		return c.compileRefOf(&ast.RefExpr{Target: e.Operand})
	}
	operandReg, err := c.compileExpr(e.Operand, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	var op opcodes.Opcode
	switch e.Op {
	case "-":
		op = opcodes.OP_NEG
	case "+":
		op = opcodes.OP_UPLUS
	case "!", "not":
		op = opcodes.OP_NOT
	case "~":
		op = opcodes.OP_BIT_NOT
	default:
		return 0, errAt(e.Pos(), "unsupported unary operator %q", e.Op)
	}
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: operandReg, Dst: dst})
	return dst, nil
}

func (c *subCompiler) compileTernary(e *ast.TernaryExpr, ctx ast.Context) (uint32, error) {
	condReg, err := c.compileExpr(e.Cond, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	jf := c.emit(opcodes.Instruction{Op: opcodes.OP_JMPF, AKind: opcodes.OperandPC, BKind: opcodes.OperandReg, B: condReg})
	thenReg, err := c.compileExpr(e.Then, ctx)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: thenReg, Dst: dst})
	jend := c.emit(opcodes.Instruction{Op: opcodes.OP_JMP, AKind: opcodes.OperandPC})
	c.patchJumpTarget(jf, c.here())
	elseReg, err := c.compileExpr(e.Else, ctx)
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_MOVE, AKind: opcodes.OperandReg, A: elseReg, Dst: dst})
	c.patchJumpTarget(jend, c.here())
	return dst, nil
}

func (c *subCompiler) compileRefOf(e *ast.RefExpr) (uint32, error) {
	targetReg, err := c.compileTargetForRef(e.Target)
	if err != nil {
		return 0, err
	}
	dst := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MAKE_REF, AKind: opcodes.OperandReg, A: targetReg, Dst: dst})
	return dst, nil
}

// compileTargetForRef resolves the register whose Value should be
// wrapped by \EXPR: for aggregate variables this is the aggregate
// itself (so \@a and @a always refer to the same Array), for scalars
// the aliased cell.
func (c *subCompiler) compileTargetForRef(n ast.Node) (uint32, error) {
	if v, ok := n.(*ast.VarRef); ok {
		return c.compileVarRefRead(v)
	}
	return c.compileExpr(n, ast.ContextScalar)
}

// compileCall lowers a named or indirect sub call. The caller's static
// context becomes a runtime SET_CONTEXT immediately before the call so
// the callee's wantarray() can observe it (spec §4.2/§4.5).
func (c *subCompiler) compileCall(e *ast.Call, ctx ast.Context) (uint32, error) {
	if e.Callee == nil {
		if dst, handled, err := c.tryCompileBuiltin(e); handled {
			return dst, err
		}
	}
	argsFirst, argCount, err := c.compileContiguous(e.Args, ast.ContextList)
	if err != nil {
		return 0, err
	}
	argsReg := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MAKE_ARGS, AKind: opcodes.OperandReg, A: argsFirst, BKind: opcodes.OperandImm, B: uint32(argCount), Dst: argsReg})

	c.emit(opcodes.Instruction{Op: opcodes.OP_SET_CONTEXT, AKind: opcodes.OperandImm, A: uint32(ctx)})

	dst := c.allocReg()
	if e.Callee != nil {
		calleeReg, err := c.compileExpr(e.Callee, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_CALL_SUB, AKind: opcodes.OperandReg, A: calleeReg, BKind: opcodes.OperandReg, B: argsReg, Dst: dst})
		return dst, nil
	}
	calleeName := e.Name
	if !builtinNames[e.Name] {
		calleeName = c.qualify(e.Name)
	}
	nameIdx := c.unit.addString(calleeName)
	c.emit(opcodes.Instruction{Op: opcodes.OP_CALL_SUB, AKind: opcodes.OperandString, A: nameIdx, BKind: opcodes.OperandReg, B: argsReg, Dst: dst})
	return dst, nil
}

// compileMethodCall lowers INVOCANT->method(ARGS). Perl passes the
// invocant as the method's own first @_ element, so it is simply
// prepended to the packaged argument list rather than threaded through
// as a separate call operand.
func (c *subCompiler) compileMethodCall(e *ast.MethodCall, ctx ast.Context) (uint32, error) {
	invocantReg, err := c.compileExpr(e.Invocant, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	all := make([]ast.Node, 0, len(e.Args)+1)
	all = append(all, wrapReg{invocantReg})
	all = append(all, e.Args...)
	argsFirst, argCount, err := c.compileContiguous(all, ast.ContextList)
	if err != nil {
		return 0, err
	}
	argsReg := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_MAKE_ARGS, AKind: opcodes.OperandReg, A: argsFirst, BKind: opcodes.OperandImm, B: uint32(argCount), Dst: argsReg})
	c.emit(opcodes.Instruction{Op: opcodes.OP_SET_CONTEXT, AKind: opcodes.OperandImm, A: uint32(ctx)})

	dst := c.allocReg()
	if e.MethodExpr != nil {
		methodReg, err := c.compileExpr(e.MethodExpr, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_CALL_METHOD, AKind: opcodes.OperandReg, A: methodReg, BKind: opcodes.OperandReg, B: argsReg, Dst: dst})
		return dst, nil
	}
	methodName := e.Method
	if e.IsSuper {
		methodName = "SUPER::" + methodName
	}
	nameIdx := c.unit.addString(methodName)
	c.emit(opcodes.Instruction{Op: opcodes.OP_CALL_METHOD, AKind: opcodes.OperandString, A: nameIdx, BKind: opcodes.OperandReg, B: argsReg, Dst: dst})
	return dst, nil
}

// wrapReg is a pseudo-node letting compileContiguous re-use an
// already-evaluated register (the method invocant) alongside freshly
// compiled argument nodes.
type wrapReg struct{ reg uint32 }

func (wrapReg) Pos() ast.Position { return ast.Position{} }
func (wrapReg) node()             {}

// compileIncDec lowers ++/-- (prefix and postfix) by mutating the
// lvalue's Cell in place via ADD_ASSIGN/SUB_ASSIGN, the same
// in-place-mutation primitive compound assignment uses.
func (c *subCompiler) compileIncDec(e *ast.IncDecExpr) (uint32, error) {
	lvalReg, err := c.resolveScalarLValue(e.Operand)
	if err != nil {
		return 0, err
	}
	one := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_INT, AKind: opcodes.OperandImm, A: 1, Dst: one})

	op := opcodes.OP_ADD_ASSIGN
	if e.Op == "--" {
		op = opcodes.OP_SUB_ASSIGN
	}

	if e.Prefix {
		c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: one, Dst: lvalReg})
		return lvalReg, nil
	}
	// Postfix: snapshot the old value (a real copy, since ADD_ASSIGN is
	// about to mutate lvalReg's Cell in place) before mutating.
	snapshot := c.allocReg()
	c.emit(opcodes.Instruction{Op: opcodes.OP_LOAD_UNDEF, Dst: snapshot})
	c.emit(opcodes.Instruction{Op: opcodes.OP_SCALAR_ASSIGN, AKind: opcodes.OperandReg, A: lvalReg, Dst: snapshot})
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: one, Dst: lvalReg})
	return snapshot, nil
}

func (c *subCompiler) compileDie(e *ast.DieExpr) (uint32, error) {
	var reg uint32
	var err error
	if e.Value == nil {
		reg, err = c.loadGlobalScalar("@")
	} else {
		reg, err = c.compileExpr(e.Value, ast.ContextScalar)
	}
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: opcodes.OP_DIE, AKind: opcodes.OperandReg, A: reg})
	return reg, nil
}
