package compiler

import (
	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
)

var compoundOpcode = map[string]opcodes.Opcode{
	"+=": opcodes.OP_ADD_ASSIGN, "-=": opcodes.OP_SUB_ASSIGN, "*=": opcodes.OP_MUL_ASSIGN,
	"/=": opcodes.OP_DIV_ASSIGN, "%=": opcodes.OP_MOD_ASSIGN, "**=": opcodes.OP_POW_ASSIGN,
	".=": opcodes.OP_CONCAT_ASSIGN, "x=": opcodes.OP_REPEAT_ASSIGN,
}

// compileAssign implements the assignment protocol matrix (spec §4.2):
// the target's static shape (declaration, scalar variable, aggregate
// variable, element, deref, list, glob) selects one of a fixed set of
// lowering rules; Op selects plain vs. compound assignment within each.
func (c *subCompiler) compileAssign(e *ast.Assign, ctx ast.Context) (uint32, error) {
	if e.Op != "=" {
		return c.compileCompoundAssign(e)
	}

	switch target := e.Target.(type) {
	case *ast.VarDecl:
		return c.compileDeclAssign(target, e.Value)

	case *ast.ListLit:
		valReg, err := c.compileExpr(e.Value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		return c.compileListDestructure(target.Elems, valReg, false)

	case *ast.VarRef:
		return c.compileVarAssign(target, e.Value)

	case *ast.ElemRef:
		return c.compileElemAssign(target, e.Value)

	case *ast.DerefExpr:
		return c.compileDerefAssign(target, e.Value)

	case *ast.GlobRef:
		valReg, err := c.compileExpr(e.Value, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		nameIdx := c.unit.addString(c.qualify(target.Name))
		c.emit(opcodes.Instruction{Op: opcodes.OP_GLOBAL_SET_GLOB, AKind: opcodes.OperandString, BKind: opcodes.OperandReg, A: nameIdx, B: valReg, Dst: valReg})
		return valReg, nil

	default:
		return 0, errAt(e.Pos(), "unsupported assignment target %T", e.Target)
	}
}

func (c *subCompiler) compileVarAssign(target *ast.VarRef, value ast.Node) (uint32, error) {
	switch target.Sigil {
	case ast.SigilArray:
		arrReg, err := c.compileVarRefRead(target)
		if err != nil {
			return 0, err
		}
		valReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_ARR_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, Dst: arrReg})
		return arrReg, nil
	case ast.SigilHash:
		hashReg, err := c.compileVarRefRead(target)
		if err != nil {
			return 0, err
		}
		valReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_HASH_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, Dst: hashReg})
		return hashReg, nil
	default:
		lvalReg, err := c.compileVarRefRead(target)
		if err != nil {
			return 0, err
		}
		valReg, err := c.compileExpr(value, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_SCALAR_ASSIGN, AKind: opcodes.OperandReg, A: valReg, Dst: lvalReg})
		return lvalReg, nil
	}
}

func (c *subCompiler) compileElemAssign(target *ast.ElemRef, value ast.Node) (uint32, error) {
	containerReg, err := c.compileContainer(target.Container, target.IsHash, true)
	if err != nil {
		return 0, err
	}
	setOp := opcodes.OP_ARR_SET
	if target.IsHash {
		setOp = opcodes.OP_HASH_SET
	}

	if target.Sigil == ast.SigilArray {
		// Slice assignment: unroll to one SET per key, pulling the i-th
		// value out of the (already list-context) RHS via
		// LIST_SLICE_FROM, since the key count is static here.
		listReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		for i, k := range target.Keys {
			keyReg, err := c.compileExpr(k, ast.ContextScalar)
			if err != nil {
				return 0, err
			}
			vreg := c.allocReg()
			c.emit(opcodes.Instruction{Op: opcodes.OP_LIST_SLICE_FROM, AKind: opcodes.OperandReg, A: listReg, BKind: opcodes.OperandImm, B: uint32(i), Dst: vreg})
			c.emit(opcodes.Instruction{Op: setOp, AKind: opcodes.OperandReg, A: containerReg, BKind: opcodes.OperandReg, B: keyReg, Dst: vreg})
		}
		return listReg, nil
	}

	keyReg, err := c.compileExpr(target.Keys[0], ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	valReg, err := c.compileExpr(value, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: setOp, AKind: opcodes.OperandReg, A: containerReg, BKind: opcodes.OperandReg, B: keyReg, Dst: valReg})
	return valReg, nil
}

func (c *subCompiler) compileDerefAssign(target *ast.DerefExpr, value ast.Node) (uint32, error) {
	switch target.Sigil {
	case ast.SigilArray:
		arrReg, err := c.compileDeref(target, true)
		if err != nil {
			return 0, err
		}
		valReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_ARR_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, Dst: arrReg})
		return arrReg, nil
	case ast.SigilHash:
		hashReg, err := c.compileDeref(target, true)
		if err != nil {
			return 0, err
		}
		valReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_HASH_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, Dst: hashReg})
		return hashReg, nil
	default:
		lvalReg, err := c.compileDeref(target, true)
		if err != nil {
			return 0, err
		}
		valReg, err := c.compileExpr(value, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_SCALAR_ASSIGN, AKind: opcodes.OperandReg, A: valReg, Dst: lvalReg})
		return lvalReg, nil
	}
}

// compileDeclAssign handles `my`/`our`/`local` combined with an
// initializer, the §4.2 "declaration assignment" row of the matrix.
func (c *subCompiler) compileDeclAssign(decl *ast.VarDecl, value ast.Node) (uint32, error) {
	if len(decl.Targets) != 1 {
		return c.compileDeclListAssign(decl, value)
	}
	switch t := decl.Targets[0].(type) {
	case *ast.VarRef:
		switch decl.Kind {
		case ast.DeclLocal:
			lvalReg, err := c.compileLocalSave(t)
			if err != nil {
				return 0, err
			}
			return c.finishScalarInit(lvalReg, t.Sigil, value)
		default: // DeclMy, DeclOur
			reg := c.declareBySigil(t)
			if decl.Kind == ast.DeclOur {
				// `our` binds the new lexical name to the package global
				// itself, so reads and writes through it reach the global.
				op := opcodes.OP_GLOBAL_GET_SCALAR
				switch t.Sigil {
				case ast.SigilArray:
					op = opcodes.OP_GLOBAL_GET_ARRAY
				case ast.SigilHash:
					op = opcodes.OP_GLOBAL_GET_HASH
				}
				nameIdx := c.unit.addString(c.qualify(t.Name))
				c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandString, A: nameIdx, Dst: reg})
			}
			return c.finishScalarInit(reg, t.Sigil, value)
		}
	case *ast.ListLit:
		return c.compileDeclListAssign(&ast.VarDecl{Kind: decl.Kind, Targets: t.Elems}, value)
	default:
		return 0, errAt(decl.Pos(), "unsupported declaration target %T", t)
	}
}

func (c *subCompiler) finishScalarInit(reg uint32, sigil ast.Sigil, value ast.Node) (uint32, error) {
	switch sigil {
	case ast.SigilArray:
		valReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_ARR_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, Dst: reg})
		return reg, nil
	case ast.SigilHash:
		valReg, err := c.compileExpr(value, ast.ContextList)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_HASH_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, Dst: reg})
		return reg, nil
	default:
		valReg, err := c.compileExpr(value, ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		c.emit(opcodes.Instruction{Op: opcodes.OP_SCALAR_ASSIGN, AKind: opcodes.OperandReg, A: valReg, Dst: reg})
		return reg, nil
	}
}

// compileDeclListAssign handles `my ($a, $b, @rest) = ...`: declare
// every target, then destructure the flattened RHS list across them
// (spec §4.2's list-assignment row; trailing array/hash target slurps
// the remainder).
func (c *subCompiler) compileDeclListAssign(decl *ast.VarDecl, value ast.Node) (uint32, error) {
	valReg, err := c.compileExpr(value, ast.ContextList)
	if err != nil {
		return 0, err
	}
	targetRegs := make([]uint32, len(decl.Targets))
	sigils := make([]ast.Sigil, len(decl.Targets))
	for i, t := range decl.Targets {
		switch v := t.(type) {
		case *ast.VarRef:
			switch decl.Kind {
			case ast.DeclLocal:
				r, err := c.compileLocalSave(v)
				if err != nil {
					return 0, err
				}
				targetRegs[i] = r
			default:
				targetRegs[i] = c.declareBySigil(v)
			}
			sigils[i] = v.Sigil
		default:
			return 0, errAt(t.Pos(), "unsupported destructuring target %T", t)
		}
	}
	return c.destructureInto(targetRegs, sigils, valReg)
}

// compileListDestructure assigns the flattened RHS (already in valReg)
// across pre-existing (non-declared) lvalue targets, e.g. `($a, $b) =
// (1, 2)` or `($a, @rest) = f()`.
func (c *subCompiler) compileListDestructure(targets []ast.Node, valReg uint32, _ bool) (uint32, error) {
	targetRegs := make([]uint32, len(targets))
	sigils := make([]ast.Sigil, len(targets))
	for i, t := range targets {
		v, ok := t.(*ast.VarRef)
		if !ok {
			return 0, errAt(t.Pos(), "unsupported destructuring target %T", t)
		}
		reg, err := c.compileVarRefRead(v)
		if err != nil {
			return 0, err
		}
		targetRegs[i] = reg
		sigils[i] = v.Sigil
	}
	return c.destructureInto(targetRegs, sigils, valReg)
}

func (c *subCompiler) destructureInto(targetRegs []uint32, sigils []ast.Sigil, valReg uint32) (uint32, error) {
	for i, reg := range targetRegs {
		switch sigils[i] {
		case ast.SigilArray:
			// Slurps everything from position i onward: B carries the
			// start offset into the flattened RHS list (0 for a plain
			// `my @a = ...`, the target's position here).
			c.emit(opcodes.Instruction{Op: opcodes.OP_ARR_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, BKind: opcodes.OperandImm, B: uint32(i), Dst: reg})
		case ast.SigilHash:
			c.emit(opcodes.Instruction{Op: opcodes.OP_HASH_SET_FROM_LIST, AKind: opcodes.OperandReg, A: valReg, BKind: opcodes.OperandImm, B: uint32(i), Dst: reg})
		default:
			elemReg := c.allocReg()
			c.emit(opcodes.Instruction{Op: opcodes.OP_LIST_SLICE_FROM, AKind: opcodes.OperandReg, A: valReg, BKind: opcodes.OperandImm, B: uint32(i), Dst: elemReg})
			c.emit(opcodes.Instruction{Op: opcodes.OP_SCALAR_ASSIGN, AKind: opcodes.OperandReg, A: elemReg, Dst: reg})
		}
	}
	return valReg, nil
}

// compileCompoundAssign lowers `+=`/`.=`/etc. to the matching
// *_ASSIGN superinstruction, which mutates the lvalue's Cell in place
// rather than rebinding a register (spec §4.2's mandatory peephole
// specialization: "x += y never allocates an intermediate temporary").
func (c *subCompiler) compileCompoundAssign(e *ast.Assign) (uint32, error) {
	op, ok := compoundOpcode[e.Op]
	if !ok {
		return 0, errAt(e.Pos(), "unsupported compound assignment operator %q", e.Op)
	}
	lvalReg, err := c.resolveScalarLValue(e.Target)
	if err != nil {
		return 0, err
	}
	valReg, err := c.compileExpr(e.Value, ast.ContextScalar)
	if err != nil {
		return 0, err
	}
	c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: valReg, Dst: lvalReg})
	return lvalReg, nil
}

// resolveScalarLValue resolves the register holding the persistent
// Scalar a compound-assignment or increment/decrement target mutates.
func (c *subCompiler) resolveScalarLValue(n ast.Node) (uint32, error) {
	switch t := n.(type) {
	case *ast.VarRef:
		return c.compileVarRefRead(t)
	case *ast.ElemRef:
		containerReg, err := c.compileContainer(t.Container, t.IsHash, true)
		if err != nil {
			return 0, err
		}
		keyReg, err := c.compileExpr(t.Keys[0], ast.ContextScalar)
		if err != nil {
			return 0, err
		}
		dst := c.allocReg()
		op := opcodes.OP_ARR_GET
		if t.IsHash {
			op = opcodes.OP_HASH_GET
		}
		c.emit(opcodes.Instruction{Op: op, AKind: opcodes.OperandReg, A: containerReg, BKind: opcodes.OperandReg, B: keyReg, Dst: dst})
		return dst, nil
	case *ast.DerefExpr:
		return c.compileDeref(t, true)
	case *ast.Assign:
		// Lets `($x = "a") =~ s/a/A/` bind against the very Scalar the
		// assignment produced, not a fresh read of it (spec §8 scenario 6).
		return c.compileAssign(t, ast.ContextScalar)
	default:
		return 0, errAt(n.Pos(), "invalid scalar lvalue %T", n)
	}
}
