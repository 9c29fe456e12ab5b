package main

import (
	"fmt"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/runtime"
	"github.com/go-perl/plvm/vm"
)

// demoScenario is one of spec §8's concrete end-to-end scenarios,
// hand-built as an ast.Program the way the spec's own prose describes
// it, rather than parsed from Perl source text (this repo owns no
// lexer/parser — see spec §1's out-of-scope list). `plvm demo <name>`
// compiles and runs one of these and prints its result list.
type demoScenario struct {
	name        string
	description string
	build       func() *ast.Program
}

func demoScenarios() []demoScenario {
	return []demoScenario{
		{
			name:        "foreach-sum",
			description: `my $n = 0; for (1..10) { $n += $_ } $n`,
			build:       buildForeachSum,
		},
		{
			name:        "closure-counter",
			description: `sub mk { my $x = shift; sub { ++$x } } my $c = mk(10); $c->(); $c->(); $c->()`,
			build:       buildClosureCounter,
		},
		{
			name:        "local-dynamic-scope",
			description: `our $g = 1; sub set_local { local $g = 42; inner() } sub inner { $g } set_local()`,
			build:       buildLocalDynamicScope,
		},
		{
			name:        "eval-die-recovery",
			description: `my @r; eval { die "oops\n" }; push @r, $@; eval { push @r, "ok" }; @r`,
			build:       buildEvalDieRecovery,
		},
		{
			name:        "list-destructure",
			description: `my ($a, $b, @rest) = (1, 2, 3, 4, 5); $a; $b; @rest`,
			build:       buildListDestructure,
		},
	}
}

func runDemo(name string) error {
	var chosen *demoScenario
	for _, s := range demoScenarios() {
		s := s
		if s.name == name {
			chosen = &s
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("no such demo %q (try %q)", name, demoNames())
	}
	fmt.Printf("# %s\n#   %s\n", chosen.name, chosen.description)

	prog := chosen.build()
	unit, err := compiler.Compile(prog, compiler.DefaultPragmas())
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	e := vm.New()
	out, err := e.Execute(unit, nil, runtime.WantList)
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	for _, v := range out {
		fmt.Println(v.ToStr())
	}
	return nil
}

func demoNames() []string {
	var names []string
	for _, s := range demoScenarios() {
		names = append(names, s.name)
	}
	return names
}

func scalarVar(name string) *ast.VarRef { return &ast.VarRef{Sigil: ast.SigilScalar, Name: name} }
func arrayVar(name string) *ast.VarRef  { return &ast.VarRef{Sigil: ast.SigilArray, Name: name} }
func exprStmt(n ast.Node) *ast.ExprStmt { return &ast.ExprStmt{Expr: n} }
func myDecl(targets ...ast.Node) *ast.VarDecl {
	return &ast.VarDecl{Kind: ast.DeclMy, Targets: targets}
}

func buildForeachSum() *ast.Program {
	return &ast.Program{Stmts: []ast.Node{
		exprStmt(&ast.Assign{Op: "=", Target: myDecl(scalarVar("n")), Value: &ast.IntLit{Value: 0}}),
		&ast.ForeachStmt{
			List: &ast.RangeLit{Lo: &ast.IntLit{Value: 1}, Hi: &ast.IntLit{Value: 10}},
			Body: &ast.Block{Stmts: []ast.Node{
				exprStmt(&ast.Assign{Op: "+=", Target: scalarVar("n"), Value: scalarVar("_")}),
			}},
		},
		exprStmt(scalarVar("n")),
	}}
}

func buildClosureCounter() *ast.Program {
	return &ast.Program{Stmts: []ast.Node{
		&ast.SubDecl{Name: "mk", Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.Assign{Op: "=", Target: myDecl(scalarVar("x")), Value: &ast.Call{Name: "shift"}}),
			exprStmt(&ast.AnonSub{Body: &ast.Block{Stmts: []ast.Node{
				exprStmt(&ast.IncDecExpr{Op: "++", Prefix: true, Operand: scalarVar("x")}),
			}}}),
		}}},
		exprStmt(&ast.Assign{Op: "=", Target: myDecl(scalarVar("c")), Value: &ast.Call{Name: "mk", Args: []ast.Node{&ast.IntLit{Value: 10}}}}),
		exprStmt(&ast.Call{Callee: scalarVar("c")}),
		exprStmt(&ast.Call{Callee: scalarVar("c")}),
		exprStmt(&ast.Call{Callee: scalarVar("c")}),
	}}
}

func buildLocalDynamicScope() *ast.Program {
	return &ast.Program{Stmts: []ast.Node{
		exprStmt(&ast.Assign{Op: "=", Target: &ast.VarDecl{Kind: ast.DeclOur, Targets: []ast.Node{scalarVar("g")}}, Value: &ast.IntLit{Value: 1}}),
		&ast.SubDecl{Name: "inner", Body: &ast.Block{Stmts: []ast.Node{exprStmt(scalarVar("g"))}}},
		&ast.SubDecl{Name: "set_local", Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.Assign{Op: "=", Target: &ast.VarDecl{Kind: ast.DeclLocal, Targets: []ast.Node{scalarVar("g")}}, Value: &ast.IntLit{Value: 42}}),
			exprStmt(&ast.Call{Name: "inner"}),
		}}},
		exprStmt(&ast.Call{Name: "set_local"}),
	}}
}

func buildEvalDieRecovery() *ast.Program {
	return &ast.Program{Stmts: []ast.Node{
		exprStmt(&ast.Assign{Op: "=", Target: myDecl(arrayVar("r")), Value: &ast.ListLit{}}),
		exprStmt(&ast.EvalBlock{Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.DieExpr{Value: &ast.StringLit{Value: "oops\n"}}),
		}}}),
		exprStmt(&ast.Call{Name: "push", Args: []ast.Node{arrayVar("r"), scalarVar("@")}}),
		exprStmt(&ast.EvalBlock{Body: &ast.Block{Stmts: []ast.Node{
			exprStmt(&ast.Call{Name: "push", Args: []ast.Node{arrayVar("r"), &ast.StringLit{Value: "ok"}}}),
		}}}),
		exprStmt(arrayVar("r")),
	}}
}

func buildListDestructure() *ast.Program {
	return &ast.Program{Stmts: []ast.Node{
		exprStmt(&ast.Assign{
			Op:     "=",
			Target: myDecl(scalarVar("a"), scalarVar("b"), arrayVar("rest")),
			Value: &ast.ListLit{Elems: []ast.Node{
				&ast.IntLit{Value: 1}, &ast.IntLit{Value: 2}, &ast.IntLit{Value: 3},
				&ast.IntLit{Value: 4}, &ast.IntLit{Value: 5},
			}},
		}),
		exprStmt(scalarVar("a")),
		exprStmt(scalarVar("b")),
		exprStmt(arrayVar("rest")),
	}}
}
