package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

func TestStrictVarsRejectsBareGlobal(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.VarRef{Sigil: ast.SigilScalar, Name: "undeclared"}},
	}}
	_, err := Compile(prog, DefaultPragmas())
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
}

func TestNonStrictVarsAllowsBareGlobal(t *testing.T) {
	pragmas := DefaultPragmas()
	pragmas.StrictVars = false
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.VarRef{Sigil: ast.SigilScalar, Name: "g"}},
	}}
	unit, err := Compile(prog, pragmas)
	require.NoError(t, err)
	require.NotNil(t, unit)
}

func TestChopAsLvalueIsRejected(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.Assign{
			Op:     "=",
			Target: &ast.Call{Name: "chop", Args: []ast.Node{&ast.VarRef{Sigil: ast.SigilScalar, Name: "x"}}},
			Value:  &ast.StringLit{Value: "y"},
		}},
	}}
	_, err := Compile(prog, DefaultPragmas())
	require.Error(t, err)
}

func TestMyDeclarationAllocatesFreshRegisterPerVar(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.Assign{
			Op:     "=",
			Target: &ast.VarDecl{Kind: ast.DeclMy, Targets: []ast.Node{&ast.VarRef{Sigil: ast.SigilScalar, Name: "x"}}},
			Value:  &ast.IntLit{Value: 1},
		}},
	}}
	unit, err := Compile(prog, DefaultPragmas())
	require.NoError(t, err)
	require.Greater(t, unit.MaxRegisters, uint32(0))
}

// TestBareShiftReadsArgsRegister covers the common `my $x = shift;`
// idiom: a zero-argument shift/pop must resolve against @_ (register 1
// of the frame) rather than erroring for lack of an explicit target.
func TestBareShiftReadsArgsRegister(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.Assign{
			Op:     "=",
			Target: &ast.VarDecl{Kind: ast.DeclMy, Targets: []ast.Node{&ast.VarRef{Sigil: ast.SigilScalar, Name: "x"}}},
			Value:  &ast.Call{Name: "shift"},
		}},
	}}
	unit, err := Compile(prog, DefaultPragmas())
	require.NoError(t, err)

	var found bool
	for _, ins := range unit.Instructions {
		if ins.Op == opcodes.OP_ARR_SHIFT {
			found = true
			require.Equal(t, regArgs, ins.A)
		}
	}
	require.True(t, found, "expected an OP_ARR_SHIFT instruction against @_")
}

// TestBarePushStillRequiresExplicitTarget confirms the zero-argument
// relaxation is scoped to shift/pop only: push/unshift/keys/values/each
// always name their container explicitly in real Perl.
func TestBarePushStillRequiresExplicitTarget(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.Call{Name: "push"}},
	}}
	_, err := Compile(prog, DefaultPragmas())
	require.Error(t, err)
}

// TestNestedSubInheritsPragmaSnapshot checks that a named sub's child
// CodeUnit starts from a clone of the enclosing pragma state (package
// name, strict flags) rather than DefaultPragmas(), since eval-STRING
// and closures both rely on that inheritance to see the right package.
func TestNestedSubInheritsPragmaSnapshot(t *testing.T) {
	pragmas := DefaultPragmas()
	pragmas.Package = "MyApp"
	pragmas.StrictVars = false

	prog := &ast.Program{Stmts: []ast.Node{
		&ast.SubDecl{Name: "inner", Body: &ast.Block{Stmts: []ast.Node{
			&ast.ExprStmt{Expr: &ast.IntLit{Value: 1}},
		}}},
	}}
	unit, err := Compile(prog, pragmas)
	require.NoError(t, err)

	var childCode *values.Code
	for _, v := range unit.ConstantPool {
		if code, ok := v.(*values.Code); ok {
			childCode = code
		}
	}
	require.NotNil(t, childCode, "expected a constant-pool Code value for the nested sub")
	childUnit, ok := childCode.Unit.(*CodeUnit)
	require.True(t, ok)
	require.Equal(t, "MyApp", childUnit.Pragmas.Package)
	require.False(t, childUnit.Pragmas.StrictVars)
}
