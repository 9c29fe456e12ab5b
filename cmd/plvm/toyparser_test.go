package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-perl/plvm/ast"
)

func TestParseLineAssignment(t *testing.T) {
	prog, err := parseLine("$x = 1 + 2 * 3")
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 1)
	es := prog.Stmts[0].(*ast.ExprStmt)
	assign, ok := es.Expr.(*ast.Assign)
	require.True(t, ok)
	require.Equal(t, "=", assign.Op)
	target, ok := assign.Target.(*ast.VarRef)
	require.True(t, ok)
	require.Equal(t, "x", target.Name)
}

func TestParseLineOperatorPrecedence(t *testing.T) {
	prog, err := parseLine("2 + 3 * 4")
	require.NoError(t, err)
	es := prog.Stmts[0].(*ast.ExprStmt)
	bin, ok := es.Expr.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, "+", bin.Op)
	rightMul, ok := bin.Right.(*ast.BinaryExpr)
	require.True(t, ok)
	require.Equal(t, "*", rightMul.Op)
}

func TestParseLineRejectsGarbage(t *testing.T) {
	_, err := parseLine("$x = @@@")
	require.Error(t, err)
}

func TestDemoScenariosAllBuildValidPrograms(t *testing.T) {
	for _, s := range demoScenarios() {
		prog := s.build()
		require.NotEmpty(t, prog.Stmts, "scenario %s produced no statements", s.name)
	}
}
