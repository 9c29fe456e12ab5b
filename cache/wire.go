package cache

import (
	"fmt"

	"github.com/go-perl/plvm/ast"
	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/values"
)

// wireUnit mirrors compiler.CodeUnit field-for-field, except its
// constant pool is the tagged wireConst form below instead of the
// values.Value interface, which gob cannot encode directly (Scalar's
// payload cell is unexported, and Code.Unit is an interface{} that
// would need every concrete kind registered anyway). Nested CodeUnits
// (inner subs) recurse through wireUnit the same way compiler.CodeUnit
// recurses through its own ConstantPool.
type wireUnit struct {
	Instructions []opcodes.Instruction
	Consts       []wireConst
	StringPool   []string
	MaxRegisters uint32
	Captured     []compiler.CapturedSlot

	SourceName string
	DebugID    string
	PCToSource map[int]ast.Position
	Pragmas    wirePragmas
	ParamNames []string
	Name       string
}

type wirePragmas struct {
	StrictVars bool
	StrictRefs bool
	Features   map[string]bool
	Warnings   map[string]bool
	Package    string
}

// wireConst tags which of the four constant-pool shapes this repo's
// compiler ever emits (compiler/*.go's addConst call sites: NewString,
// NewFloat, NewRegex, NewCode — see DESIGN.md's cache entry).
type wireConst struct {
	Tag    string // "string", "float", "regex", "code"
	Str    string
	Float  float64
	RxSrc  string
	RxFlag string
	Code   *wireUnit
}

func toWireUnit(u *compiler.CodeUnit) (*wireUnit, error) {
	consts := make([]wireConst, len(u.ConstantPool))
	for i, v := range u.ConstantPool {
		wc, err := toWireConst(v)
		if err != nil {
			return nil, fmt.Errorf("const %d: %w", i, err)
		}
		consts[i] = wc
	}
	return &wireUnit{
		Instructions: u.Instructions,
		Consts:       consts,
		StringPool:   u.StringPool,
		MaxRegisters: u.MaxRegisters,
		Captured:     u.Captured,
		SourceName:   u.SourceName,
		DebugID:      u.DebugID,
		PCToSource:   u.PCToSource,
		Pragmas: wirePragmas{
			StrictVars: u.Pragmas.StrictVars,
			StrictRefs: u.Pragmas.StrictRefs,
			Features:   u.Pragmas.Features,
			Warnings:   u.Pragmas.Warnings,
			Package:    u.Pragmas.Package,
		},
		ParamNames: u.ParamNames,
		Name:       u.Name,
	}, nil
}

func toWireConst(v values.Value) (wireConst, error) {
	switch c := v.(type) {
	case *values.Scalar:
		if rx := c.Regex(); rx != nil {
			return wireConst{Tag: "regex", RxSrc: rx.Source, RxFlag: rx.Flags}, nil
		}
		if c.IsNumeric() {
			return wireConst{Tag: "float", Float: c.ToFloat()}, nil
		}
		return wireConst{Tag: "string", Str: c.ToStr()}, nil
	case *values.Code:
		inner, ok := c.Unit.(*compiler.CodeUnit)
		if !ok {
			return wireConst{}, fmt.Errorf("code constant %q has no compiler.CodeUnit payload", c.Name)
		}
		w, err := toWireUnit(inner)
		if err != nil {
			return wireConst{}, err
		}
		return wireConst{Tag: "code", Str: c.Name, Code: w}, nil
	default:
		return wireConst{}, fmt.Errorf("unsupported constant-pool value kind %T", v)
	}
}

func (w *wireUnit) toCodeUnit() *compiler.CodeUnit {
	consts := make([]values.Value, len(w.Consts))
	for i, wc := range w.Consts {
		consts[i] = wc.toValue()
	}
	return &compiler.CodeUnit{
		Instructions: w.Instructions,
		ConstantPool: consts,
		StringPool:   w.StringPool,
		MaxRegisters: w.MaxRegisters,
		Captured:     w.Captured,
		SourceName:   w.SourceName,
		DebugID:      w.DebugID,
		PCToSource:   w.PCToSource,
		Pragmas: compiler.PragmaSnapshot{
			StrictVars: w.Pragmas.StrictVars,
			StrictRefs: w.Pragmas.StrictRefs,
			Features:   w.Pragmas.Features,
			Warnings:   w.Pragmas.Warnings,
			Package:    w.Pragmas.Package,
		},
		ParamNames: w.ParamNames,
		Name:       w.Name,
	}
}

func (wc wireConst) toValue() values.Value {
	switch wc.Tag {
	case "regex":
		return values.NewRegex(&values.RegexPayload{Source: wc.RxSrc, Flags: wc.RxFlag})
	case "float":
		return values.NewFloat(wc.Float)
	case "code":
		return values.NewCode(wc.Str, wc.Code.toCodeUnit(), nil)
	default:
		return values.NewString(wc.Str)
	}
}
