package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/compiler"
)

func TestStoreRoundTripsCodeUnit(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	prog := &ast.Program{Stmts: []ast.Node{
		&ast.ExprStmt{Expr: &ast.FloatLit{Value: 3.5}},
	}}
	pragmas := compiler.DefaultPragmas()
	unit, err := compiler.Compile(prog, pragmas)
	require.NoError(t, err)

	key := Key("my_source_text", pragmas)

	_, ok, err := store.Lookup(key)
	require.NoError(t, err)
	require.False(t, ok, "fresh store should miss")

	require.NoError(t, store.Store(key, unit))

	got, ok, err := store.Lookup(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, unit.Instructions, got.Instructions)
	require.Equal(t, unit.MaxRegisters, got.MaxRegisters)
	require.Len(t, got.ConstantPool, len(unit.ConstantPool))
	require.Equal(t, unit.ConstantPool[0].ToScalar().ToFloat(), got.ConstantPool[0].ToScalar().ToFloat())
}

func TestKeyDiffersByPragmas(t *testing.T) {
	a := compiler.DefaultPragmas()
	b := compiler.DefaultPragmas()
	b.StrictVars = false
	require.NotEqual(t, Key("same source", a), Key("same source", b))
}
