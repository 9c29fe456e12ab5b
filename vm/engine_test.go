package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/runtime"
)

// runProgram compiles prog under default pragmas and executes it in list
// context, returning every result value as a string together with the
// Engine, so callers can also inspect globals afterwards.
func runProgram(t *testing.T, prog *ast.Program) ([]string, *Engine) {
	t.Helper()
	unit, err := compiler.Compile(prog, compiler.DefaultPragmas())
	require.NoError(t, err)
	e := New()
	out, err := e.Execute(unit, nil, runtime.WantList)
	require.NoError(t, err)
	strs := make([]string, len(out))
	for i, s := range out {
		strs[i] = s.ToStr()
	}
	return strs, e
}

func scalarVar(name string) *ast.VarRef  { return &ast.VarRef{Sigil: ast.SigilScalar, Name: name} }
func arrayVar(name string) *ast.VarRef   { return &ast.VarRef{Sigil: ast.SigilArray, Name: name} }
func exprStmt(n ast.Node) *ast.ExprStmt  { return &ast.ExprStmt{Expr: n} }
func myDecl(v *ast.VarRef) *ast.VarDecl  { return &ast.VarDecl{Kind: ast.DeclMy, Targets: []ast.Node{v}} }

func assignMy(v *ast.VarRef, rhs ast.Node) *ast.Assign {
	return &ast.Assign{Op: "=", Target: myDecl(v), Value: rhs}
}

// Scenario 1 (spec §8): my $n = 0; for (1..10) { $n += $_ } $n → 55.
func TestForeachAccumulate(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(assignMy(scalarVar("n"), &ast.IntLit{Value: 0})),
		&ast.ForeachStmt{
			List: &ast.RangeLit{Lo: &ast.IntLit{Value: 1}, Hi: &ast.IntLit{Value: 10}},
			Body: &ast.Block{Stmts: []ast.Node{
				exprStmt(&ast.Assign{Op: "+=", Target: scalarVar("n"), Value: scalarVar("_")}),
			}},
		},
		exprStmt(scalarVar("n")),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"55"}, out)
}

// Scenario 3 (spec §8): our $g = 1; sub set_local { local $g = 42; inner() }
// sub inner { $g } set_local() → 42, and $g is 1 again afterwards.
func TestLocalRestoresOnScopeExit(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(&ast.Assign{Op: "=", Target: &ast.VarDecl{Kind: ast.DeclOur, Targets: []ast.Node{scalarVar("g")}}, Value: &ast.IntLit{Value: 1}}),
		&ast.SubDecl{Name: "inner", Body: &ast.Block{Stmts: []ast.Node{exprStmt(scalarVar("g"))}}},
		&ast.SubDecl{Name: "set_local", Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.Assign{Op: "=", Target: &ast.VarDecl{Kind: ast.DeclLocal, Targets: []ast.Node{scalarVar("g")}}, Value: &ast.IntLit{Value: 42}}),
			exprStmt(&ast.Call{Name: "inner"}),
		}}},
		exprStmt(&ast.Call{Name: "set_local"}),
	}}
	out, e := runProgram(t, prog)
	require.Equal(t, []string{"42"}, out)
	require.Equal(t, "1", e.Globals.Scalar("main::g").ToStr())
}

// Scenario 4 (spec §8): my @r; eval { die "oops\n" }; push @r, $@;
// eval { push @r, "ok" }; "@r" → "oops\n ok".
func TestEvalCatchesDieAndClearsErrorOnSuccess(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(assignMy(arrayVar("r"), &ast.ListLit{})),
		exprStmt(&ast.EvalBlock{Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.DieExpr{Value: &ast.StringLit{Value: "oops\n"}}),
		}}}),
		exprStmt(&ast.Call{Name: "push", Args: []ast.Node{arrayVar("r"), scalarVar("@")}}),
		exprStmt(&ast.EvalBlock{Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.Call{Name: "push", Args: []ast.Node{arrayVar("r"), &ast.StringLit{Value: "ok"}}}),
		}}}),
		exprStmt(arrayVar("r")),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"oops\n", "ok"}, out)
}

// Scenario 5 (spec §8): my ($a, $b, @rest) = (1, 2, 3, 4, 5); the
// slurpy @rest takes everything after $a and $b. The program's result
// is its last statement, @rest, so the expected list is 3, 4, 5.
func TestListDestructureWithSlurpyRest(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(&ast.Assign{
			Op: "=",
			Target: &ast.VarDecl{Kind: ast.DeclMy, Targets: []ast.Node{
				scalarVar("a"), scalarVar("b"), arrayVar("rest"),
			}},
			Value: &ast.ListLit{Elems: []ast.Node{
				&ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}, &ast.IntLit{Value: 3},
				&ast.IntLit{Value: 4}, &ast.IntLit{Value: 5},
			}},
		}),
		exprStmt(scalarVar("a")),
		exprStmt(scalarVar("b")),
		exprStmt(arrayVar("rest")),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"3", "4", "5"}, out)
}

// Scenario 6 (spec §8): my $s = "x"; ($s = "ab") =~ s/a/A/; $s → "Ab"
// (the reloaded-lvalue contract: the parenthesized assignment's result
// is the same Scalar the substitution mutates in place).
func TestSubstOnReloadedAssignmentLvalue(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(assignMy(scalarVar("s"), &ast.StringLit{Value: "x"})),
		exprStmt(&ast.SubstExpr{
			Subject:     &ast.Assign{Op: "=", Target: scalarVar("s"), Value: &ast.StringLit{Value: "ab"}},
			Pattern:     &ast.RegexLit{Source: "a"},
			Replacement: "A",
		}),
		exprStmt(scalarVar("s")),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"Ab"}, out)
}

// Scenario 2 (spec §8): sub mk { my $x = shift; sub { ++$x } }
// my $c = mk(10); $c->(); $c->(); $c->() → 13, and the captured $x is 13.
func TestClosureCapturesAndMutatesOuterLexical(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		&ast.SubDecl{Name: "mk", Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(assignMy(scalarVar("x"), &ast.Call{Name: "shift"})),
			exprStmt(&ast.AnonSub{Body: &ast.Block{Stmts: []ast.Node{
				exprStmt(&ast.IncDecExpr{Op: "++", Prefix: true, Operand: scalarVar("x")}),
			}}}),
		}}},
		exprStmt(assignMy(scalarVar("c"), &ast.Call{Name: "mk", Args: []ast.Node{&ast.IntLit{Value: 10}}})),
		exprStmt(&ast.Call{Callee: scalarVar("c")}),
		exprStmt(&ast.Call{Callee: scalarVar("c")}),
		exprStmt(&ast.Call{Callee: scalarVar("c")}),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"13"}, out)
}

// Short-circuit invariant (spec §8 property 6): the right operand of
// `||` must not evaluate when the left side is already true.
func TestShortCircuitOrSkipsRightSideEffect(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(assignMy(scalarVar("hit"), &ast.IntLit{Value: 0})),
		exprStmt(&ast.BinaryExpr{
			Op:   "||",
			Left: &ast.IntLit{Value: 1},
			Right: &ast.Assign{Op: "=", Target: scalarVar("hit"), Value: &ast.IntLit{Value: 1}},
		}),
		exprStmt(scalarVar("hit")),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"0"}, out)
}

// Reference round-trip (spec §8 property 7): create-ref then
// dereference-scalar yields the original scalar's identity, so a write
// through the deref is visible via the original variable.
func TestRefDerefRoundTripAliases(t *testing.T) {
	prog := &ast.Program{Stmts: []ast.Node{
		exprStmt(assignMy(scalarVar("x"), &ast.IntLit{Value: 10})),
		exprStmt(assignMy(scalarVar("r"), &ast.RefExpr{Target: scalarVar("x")})),
		exprStmt(&ast.Assign{
			Op:     "=",
			Target: &ast.DerefExpr{Sigil: ast.SigilScalar, Target: scalarVar("r"), Arrow: false},
			Value:  &ast.IntLit{Value: 99},
		}),
		exprStmt(scalarVar("x")),
	}}
	out, _ := runProgram(t, prog)
	require.Equal(t, []string{"99"}, out)
}
