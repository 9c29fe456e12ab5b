package vm

import (
	"fmt"
	"strings"

	"github.com/go-perl/plvm/compiler"
	"github.com/go-perl/plvm/opcodes"
	"github.com/go-perl/plvm/runtime"
	"github.com/go-perl/plvm/values"
)

// frame is one in-progress CodeUnit activation: its register file and
// program counter. Registers hold interface Value handles exactly as
// spec §4.2 describes; register 0 carries this call's own Code (for
// `__SUB__`/recursion by ref), register 1 is @_, register 2 the
// integer context tag, and 3..3+len(Captured)-1 the closure captures.
type frame struct {
	unit      *compiler.CodeUnit
	regs      []values.Value
	pc        int
	subName   string
	evalStack []evalHandler
}

// evalHandler is one pending `eval{}`/`eval STRING` try region: where to
// jump on a caught exception, and which register receives control after
// the jump (the try body's result register, left untouched; only PC
// matters — the compiler emits the catch body to assign $@ itself).
type evalHandler struct {
	catchPC int
}

func newFrame(unit *compiler.CodeUnit, subName string) *frame {
	n := unit.MaxRegisters
	if n < 8 {
		n = 8
	}
	return &frame{unit: unit, regs: make([]values.Value, n), subName: subName}
}

func (f *frame) get(idx uint32) values.Value {
	if int(idx) >= len(f.regs) {
		return values.NewUndef()
	}
	v := f.regs[idx]
	if v == nil {
		v = values.NewUndef()
		f.regs[idx] = v
	}
	return v
}

func (f *frame) scalar(idx uint32) *values.Scalar { return f.get(idx).ToScalar() }

func (f *frame) set(idx uint32, v values.Value) {
	if int(idx) >= len(f.regs) {
		grown := make([]values.Value, idx+1)
		copy(grown, f.regs)
		f.regs = grown
	}
	f.regs[idx] = v
}

// operand resolves an instruction's A/B payload against this frame,
// the unit's constant/string pools, or as a raw immediate, per its
// OperandKind tag.
func (f *frame) operand(kind opcodes.OperandKind, raw uint32) values.Value {
	switch kind {
	case opcodes.OperandReg:
		return f.get(raw)
	case opcodes.OperandConst:
		if int(raw) < len(f.unit.ConstantPool) {
			return f.unit.ConstantPool[raw]
		}
		return values.NewUndef()
	case opcodes.OperandString:
		if int(raw) < len(f.unit.StringPool) {
			return values.NewString(f.unit.StringPool[raw])
		}
		return values.NewUndef()
	case opcodes.OperandImm:
		return values.NewInt(int64(int32(raw)))
	default:
		return values.NewUndef()
	}
}

func (f *frame) operandStr(kind opcodes.OperandKind, raw uint32) string {
	if kind == opcodes.OperandString && int(raw) < len(f.unit.StringPool) {
		return f.unit.StringPool[raw]
	}
	return f.operand(kind, raw).ToScalar().ToStr()
}

// Execute runs an already compiled unit as an independent call: the top-level
// entry point a host (the CLI, a test, an `eval STRING` caller) uses to
// kick off interpretation (spec §4.3). args become @_; want picks
// void/scalar/list context for the implicit final-expression return
// value (spec §4.2's context-propagation contract).
func (e *Engine) Execute(unit *compiler.CodeUnit, args []*values.Scalar, want runtime.WantArray) ([]*values.Scalar, error) {
	return e.call(unit, args, want, nil, unit.Name)
}

// call runs one CodeUnit activation to completion: a fresh register
// file, @_ bound from args, captured closure slots installed, `local`
// unwound on every exit path (spec §4.5's SAVE/POP bracketing,
// simplified to call-boundary granularity — see DESIGN.md), and the
// frame-stack entry `caller()` observes pushed and popped around it.
func (e *Engine) call(unit *compiler.CodeUnit, args []*values.Scalar, want runtime.WantArray, captured []values.Value, subName string) ([]*values.Scalar, error) {
	f := newFrame(unit, subName)
	f.set(0, values.NewCode(subName, unit, captured))
	argsArr := values.NewArray()
	argsArr.Push(args...)
	f.set(1, argsArr)
	f.set(2, values.NewInt(int64(contextTag(want))))
	for i, c := range captured {
		f.set(uint32(3+i), c)
	}

	e.Frames.Push(runtime.Frame{
		Package:    unit.Pragmas.Package,
		SubName:    subName,
		SourceName: unit.SourceName,
		Want:       want,
	})
	localLevel := e.Dynamic.SaveLevel()
	defer func() {
		e.Dynamic.PopToLevel(localLevel)
		e.Frames.Pop()
	}()

	// Results leave as copies taken before the deferred PopToLevel, so a
	// value read from a `local`-ized global keeps what it held at return.
	out, err := e.run(f, want)
	return copies(out), err
}

func contextTag(w runtime.WantArray) int64 {
	switch w {
	case runtime.WantScalar:
		return 1
	case runtime.WantList:
		return 2
	default:
		return 0
	}
}

// run is the dispatch loop proper: one switch over opcode, advancing
// f.pc, until OP_RETURN or an uncaught error/exception unwinds it.
func (e *Engine) run(f *frame, want runtime.WantArray) ([]*values.Scalar, error) {
	for {
		if f.pc < 0 || f.pc >= len(f.unit.Instructions) {
			return nil, nil
		}
		ins := f.unit.Instructions[f.pc]
		e.Debug.Trace(f.unit.SourceName, f.pc, ins.Op)
		e.profile.observe(f.pc, ins.Op)

		result, jumped, err := e.step(f, ins)
		if err != nil {
			if handled, hpc := e.tryCatch(f, err); handled {
				f.pc = hpc
				continue
			}
			return nil, err
		}
		if result != nil {
			return result.values, nil
		}
		if !jumped {
			f.pc++
		}
	}
}

// tryCatch converts err to $@ and resumes at the innermost pending
// eval handler, if any (spec §4.3's eval-try/catch contract). A
// ctlTransfer or UnhandledMarkerError is never caught here — only a
// genuine die/runtime-error crosses an eval boundary.
func (e *Engine) tryCatch(f *frame, err error) (bool, int) {
	if len(f.evalStack) == 0 {
		return false, 0
	}
	var excVal *values.Scalar
	switch t := err.(type) {
	case *PerlException:
		excVal = t.Value
	case *RuntimeError:
		excVal = t.toException().Value
	default:
		return false, 0
	}
	h := f.evalStack[len(f.evalStack)-1]
	f.evalStack = f.evalStack[:len(f.evalStack)-1]
	e.Error.SetValue(excVal)
	return true, h.catchPC
}

// runResult carries a frame's completed return value out of step/run;
// a nil *runResult from step means "keep dispatching in this frame."
type runResult struct {
	values []*values.Scalar
}

// step executes a single instruction. It returns (result, jumped, err):
// result is non-nil only for OP_RETURN; jumped reports whether pc was
// already advanced by a control-flow opcode (so run should not also
// increment it); err is any die/runtime-error/propagating exception.
func (e *Engine) step(f *frame, ins opcodes.Instruction) (*runResult, bool, error) {
	switch {
	case ins.Op < 25:
		return e.stepControl(f, ins)
	case ins.Op < 40:
		return nil, false, e.stepRegister(f, ins)
	case ins.Op < 60:
		return nil, false, e.stepGlobal(f, ins)
	case ins.Op < 90:
		return nil, false, e.stepArith(f, ins)
	case ins.Op < 110:
		return nil, false, e.stepCompare(f, ins)
	case ins.Op < 125:
		return nil, false, e.stepLogicalBitwise(f, ins)
	case ins.Op < 160:
		return nil, false, e.stepAggregate(f, ins)
	case ins.Op < 175:
		return nil, false, e.stepRef(f, ins)
	case ins.Op < 190:
		return e.stepCall(f, ins)
	case ins.Op < 205:
		return nil, false, e.stepScope(f, ins)
	case ins.Op < 210:
		return nil, false, e.stepIterCreate(f, ins)
	case ins.Op < 215:
		return nil, false, e.stepException(f, ins)
	default:
		return nil, false, e.stepRegexIO(f, ins)
	}
}

func (e *Engine) rtErr(f *frame, format string, a ...interface{}) error {
	return &RuntimeError{Message: fmt.Sprintf(format, a...), PC: f.pc, Unit: f.unit}
}

// ---- Group 1: control flow ----

func (e *Engine) stepControl(f *frame, ins opcodes.Instruction) (*runResult, bool, error) {
	switch ins.Op {
	case opcodes.OP_JMP:
		f.pc = ins.PC()
		return nil, true, nil
	case opcodes.OP_JMPT:
		if f.scalar(ins.B).ToBool() {
			f.pc = ins.PC()
			return nil, true, nil
		}
		return nil, false, nil
	case opcodes.OP_JMPF:
		if !f.scalar(ins.B).ToBool() {
			f.pc = ins.PC()
			return nil, true, nil
		}
		return nil, false, nil
	case opcodes.OP_JMPDEF:
		if f.scalar(ins.B).IsDefined() {
			f.pc = ins.PC()
			return nil, true, nil
		}
		return nil, false, nil
	case opcodes.OP_JMPUNDEF:
		if !f.scalar(ins.B).IsDefined() {
			f.pc = ins.PC()
			return nil, true, nil
		}
		return nil, false, nil
	case opcodes.OP_RETURN:
		var out []*values.Scalar
		if ins.AKind != opcodes.OperandNone {
			out = values.Flatten(f.get(ins.A))
		}
		return &runResult{values: out}, true, nil
	case opcodes.OP_LAST, opcodes.OP_NEXT, opcodes.OP_REDO, opcodes.OP_GOTO:
		// Resolved entirely at compile time to a direct jump within the
		// same CodeUnit (see DESIGN.md); A always carries the target pc.
		f.pc = ins.PC()
		return nil, true, nil
	case opcodes.OP_EVAL_TRY:
		f.evalStack = append(f.evalStack, evalHandler{catchPC: int(int32(ins.A))})
		return nil, false, nil
	case opcodes.OP_EVAL_END:
		if len(f.evalStack) > 0 {
			f.evalStack = f.evalStack[:len(f.evalStack)-1]
		}
		e.Error.Clear()
		return nil, false, nil
	case opcodes.OP_EVAL_CATCH:
		// $@ was already populated by tryCatch; the eval expression
		// itself evaluates to undef on the caught-exception path.
		f.set(ins.Dst, values.NewUndef())
		return nil, false, nil
	case opcodes.OP_ITER_HAS_NEXT:
		it, ok := f.get(ins.A).(*values.Iterator)
		f.set(ins.Dst, values.NewBool(ok && it.ToBool()))
		return nil, false, nil
	case opcodes.OP_ITER_NEXT:
		it, ok := f.get(ins.A).(*values.Iterator)
		if !ok {
			f.set(ins.Dst, values.NewUndef())
			return nil, false, nil
		}
		v, _ := it.Next()
		if v == nil {
			v = values.NewUndef()
		}
		f.set(ins.Dst, v)
		return nil, false, nil
	case opcodes.OP_ITER_NEXT_OR_EXIT:
		it, ok := f.get(ins.A).(*values.Iterator)
		if !ok {
			f.pc = int(ins.B)
			return nil, true, nil
		}
		v, more := it.Next()
		if !more {
			f.pc = int(ins.B)
			return nil, true, nil
		}
		f.set(ins.Dst, v)
		return nil, false, nil
	case opcodes.OP_NOP:
		return nil, false, nil
	}
	return nil, false, e.rtErr(f, "unhandled control opcode %s", ins.Op)
}

// ---- Group 2: register ops ----

func (e *Engine) stepRegister(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_MOVE:
		f.set(ins.Dst, f.get(ins.A))
	case opcodes.OP_LOAD_INT:
		f.set(ins.Dst, values.NewInt(ins.ImmInt()))
	case opcodes.OP_LOAD_FLOAT:
		if int(ins.A) < len(f.unit.ConstantPool) {
			f.set(ins.Dst, f.unit.ConstantPool[ins.A])
		} else {
			f.set(ins.Dst, values.NewFloat(0))
		}
	case opcodes.OP_LOAD_STRING:
		f.set(ins.Dst, values.NewString(f.operandStr(opcodes.OperandString, ins.A)))
	case opcodes.OP_LOAD_UNDEF:
		f.set(ins.Dst, values.NewUndef())
	case opcodes.OP_LOAD_CONST:
		if int(ins.A) < len(f.unit.ConstantPool) {
			f.set(ins.Dst, f.unit.ConstantPool[ins.A])
		} else {
			f.set(ins.Dst, values.NewUndef())
		}
	case opcodes.OP_SCALAR_ASSIGN:
		f.scalar(ins.Dst).Set(f.scalar(ins.A))
	default:
		return e.rtErr(f, "unhandled register opcode %s", ins.Op)
	}
	return nil
}

// ---- Group 3: global access ----

func (e *Engine) qualify(f *frame, name string) string {
	if strings.Contains(name, "::") {
		return name
	}
	return f.unit.Pragmas.Package + "::" + name
}

func (e *Engine) stepGlobal(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_GLOBAL_GET_SCALAR:
		f.set(ins.Dst, e.Globals.Scalar(e.qualify(f, f.operandStr(ins.AKind, ins.A))))
	case opcodes.OP_GLOBAL_SET_SCALAR:
		e.Globals.Scalar(e.qualify(f, f.operandStr(ins.AKind, ins.A))).Set(f.scalar(ins.B))
	case opcodes.OP_GLOBAL_GET_ARRAY:
		f.set(ins.Dst, e.Globals.Array(e.qualify(f, f.operandStr(ins.AKind, ins.A))))
	case opcodes.OP_GLOBAL_SET_ARRAY:
		arr, _ := f.get(ins.B).(*values.Array)
		if arr == nil {
			arr = values.NewArray()
		}
		e.Globals.SetArray(e.qualify(f, f.operandStr(ins.AKind, ins.A)), arr)
	case opcodes.OP_GLOBAL_GET_HASH:
		f.set(ins.Dst, e.Globals.Hash(e.qualify(f, f.operandStr(ins.AKind, ins.A))))
	case opcodes.OP_GLOBAL_SET_HASH:
		h, _ := f.get(ins.B).(*values.Hash)
		if h == nil {
			h = values.NewHash()
		}
		e.Globals.SetHash(e.qualify(f, f.operandStr(ins.AKind, ins.A)), h)
	case opcodes.OP_GLOBAL_GET_CODE:
		c := e.Globals.Code(e.qualify(f, f.operandStr(ins.AKind, ins.A)))
		if c == nil {
			f.set(ins.Dst, values.NewUndef())
		} else {
			f.set(ins.Dst, c)
		}
	case opcodes.OP_GLOBAL_SET_CODE:
		code, _ := f.get(ins.B).(*values.Code)
		e.Globals.SetCode(e.qualify(f, f.operandStr(ins.AKind, ins.A)), code)
	case opcodes.OP_GLOBAL_GET_GLOB:
		f.set(ins.Dst, e.Globals.Glob(e.qualify(f, f.operandStr(ins.AKind, ins.A))))
	case opcodes.OP_GLOBAL_SET_GLOB:
		src, _ := f.get(ins.B).(*values.Glob)
		if src != nil {
			e.Globals.SetGlob(e.qualify(f, f.operandStr(ins.AKind, ins.A)), src)
		}
	case opcodes.OP_GLOBAL_GET_SYMBOLIC:
		name := f.scalar(ins.A).ToStr()
		f.set(ins.Dst, e.Globals.Scalar(e.qualify(f, name)))
	case opcodes.OP_GLOBAL_SET_SYMBOLIC:
		name := f.scalar(ins.A).ToStr()
		e.Globals.Scalar(e.qualify(f, name)).Set(f.scalar(ins.B))
	default:
		return e.rtErr(f, "unhandled global opcode %s", ins.Op)
	}
	return nil
}

// ---- Group 4: arithmetic & string ----

func (e *Engine) stepArith(f *frame, ins opcodes.Instruction) error {
	a := func() *values.Scalar { return f.scalar(ins.A) }
	b := func() *values.Scalar { return f.scalar(ins.B) }
	switch ins.Op {
	case opcodes.OP_ADD:
		f.set(ins.Dst, values.Add(a(), b()))
	case opcodes.OP_SUB:
		f.set(ins.Dst, values.Sub(a(), b()))
	case opcodes.OP_MUL:
		f.set(ins.Dst, values.Mul(a(), b()))
	case opcodes.OP_DIV:
		f.set(ins.Dst, values.Div(a(), b()))
	case opcodes.OP_MOD:
		f.set(ins.Dst, values.Mod(a(), b()))
	case opcodes.OP_POW:
		f.set(ins.Dst, values.Pow(a(), b()))
	case opcodes.OP_NEG:
		f.set(ins.Dst, values.Neg(a()))
	case opcodes.OP_UPLUS:
		f.set(ins.Dst, values.NewFloat(a().ToFloat()))
	case opcodes.OP_CONCAT:
		f.set(ins.Dst, values.Concat(a(), b()))
	case opcodes.OP_REPEAT:
		f.set(ins.Dst, values.Repeat(a(), b().ToInt()))
	case opcodes.OP_LENGTH:
		f.set(ins.Dst, values.NewInt(values.Length(a())))
	case opcodes.OP_ADD_ASSIGN:
		f.scalar(ins.Dst).Set(values.Add(f.scalar(ins.Dst), a()))
	case opcodes.OP_SUB_ASSIGN:
		f.scalar(ins.Dst).Set(values.Sub(f.scalar(ins.Dst), a()))
	case opcodes.OP_MUL_ASSIGN:
		f.scalar(ins.Dst).Set(values.Mul(f.scalar(ins.Dst), a()))
	case opcodes.OP_DIV_ASSIGN:
		f.scalar(ins.Dst).Set(values.Div(f.scalar(ins.Dst), a()))
	case opcodes.OP_MOD_ASSIGN:
		f.scalar(ins.Dst).Set(values.Mod(f.scalar(ins.Dst), a()))
	case opcodes.OP_POW_ASSIGN:
		f.scalar(ins.Dst).Set(values.Pow(f.scalar(ins.Dst), a()))
	case opcodes.OP_CONCAT_ASSIGN:
		f.scalar(ins.Dst).Set(values.Concat(f.scalar(ins.Dst), a()))
	case opcodes.OP_REPEAT_ASSIGN:
		f.scalar(ins.Dst).Set(values.Repeat(f.scalar(ins.Dst), a().ToInt()))
	default:
		return e.rtErr(f, "unhandled arithmetic opcode %s", ins.Op)
	}
	return nil
}

// ---- Group 5: comparison ----

func (e *Engine) stepCompare(f *frame, ins opcodes.Instruction) error {
	a, b := f.scalar(ins.A), f.scalar(ins.B)
	switch ins.Op {
	case opcodes.OP_NUM_EQ:
		f.set(ins.Dst, values.NewBool(values.NumEqual(a, b)))
	case opcodes.OP_NUM_NE:
		f.set(ins.Dst, values.NewBool(!values.NumEqual(a, b)))
	case opcodes.OP_NUM_LT:
		f.set(ins.Dst, values.NewBool(values.NumLess(a, b)))
	case opcodes.OP_NUM_LE:
		f.set(ins.Dst, values.NewBool(values.NumLessEq(a, b)))
	case opcodes.OP_NUM_GT:
		f.set(ins.Dst, values.NewBool(values.NumGreater(a, b)))
	case opcodes.OP_NUM_GE:
		f.set(ins.Dst, values.NewBool(values.NumGreaterEq(a, b)))
	case opcodes.OP_NUM_CMP:
		f.set(ins.Dst, values.NewInt(int64(values.NumCompare(a, b))))
	case opcodes.OP_STR_EQ:
		f.set(ins.Dst, values.NewBool(values.StrEqual(a, b)))
	case opcodes.OP_STR_NE:
		f.set(ins.Dst, values.NewBool(!values.StrEqual(a, b)))
	case opcodes.OP_STR_LT:
		f.set(ins.Dst, values.NewBool(values.StrLess(a, b)))
	case opcodes.OP_STR_LE:
		f.set(ins.Dst, values.NewBool(values.StrLessEq(a, b)))
	case opcodes.OP_STR_GT:
		f.set(ins.Dst, values.NewBool(values.StrGreater(a, b)))
	case opcodes.OP_STR_GE:
		f.set(ins.Dst, values.NewBool(values.StrGreaterEq(a, b)))
	case opcodes.OP_STR_CMP:
		f.set(ins.Dst, values.NewInt(int64(values.StrCompare(a, b))))
	default:
		return e.rtErr(f, "unhandled comparison opcode %s", ins.Op)
	}
	return nil
}

// ---- Group 6: logical / bitwise ----

func (e *Engine) stepLogicalBitwise(f *frame, ins opcodes.Instruction) error {
	a := f.scalar(ins.A)
	switch ins.Op {
	case opcodes.OP_NOT:
		f.set(ins.Dst, values.NewBool(!a.ToBool()))
	case opcodes.OP_BIT_AND:
		f.set(ins.Dst, values.BitAnd(a, f.scalar(ins.B)))
	case opcodes.OP_BIT_OR:
		f.set(ins.Dst, values.BitOr(a, f.scalar(ins.B)))
	case opcodes.OP_BIT_XOR:
		f.set(ins.Dst, values.BitXor(a, f.scalar(ins.B)))
	case opcodes.OP_SHL:
		f.set(ins.Dst, values.Shl(a, f.scalar(ins.B)))
	case opcodes.OP_SHR:
		f.set(ins.Dst, values.Shr(a, f.scalar(ins.B)))
	case opcodes.OP_BIT_NOT:
		f.set(ins.Dst, values.BitNot(a))
	case opcodes.OP_LOGICAL_XOR:
		f.set(ins.Dst, values.NewBool(a.ToBool() != f.scalar(ins.B).ToBool()))
	default:
		return e.rtErr(f, "unhandled logical/bitwise opcode %s", ins.Op)
	}
	return nil
}

// ---- Group 7: aggregate ops ----

func (e *Engine) stepAggregate(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_ARR_NEW:
		f.set(ins.Dst, values.NewArray())
	case opcodes.OP_ARR_GET:
		arr := e.asArray(f, ins.A)
		f.set(ins.Dst, arr.Get(int(f.scalar(ins.B).ToInt())))
	case opcodes.OP_ARR_SET:
		arr := e.asArray(f, ins.A)
		arr.Set(int(f.scalar(ins.B).ToInt()), f.scalar(ins.Dst))
	case opcodes.OP_ARR_PUSH:
		arr := e.asArray(f, ins.Dst)
		arr.Push(copies(f.contiguous(ins.A, ins.B))...)
	case opcodes.OP_ARR_POP:
		f.set(ins.Dst, e.asArray(f, ins.A).Pop())
	case opcodes.OP_ARR_SHIFT:
		f.set(ins.Dst, e.asArray(f, ins.A).Shift())
	case opcodes.OP_ARR_UNSHIFT:
		arr := e.asArray(f, ins.Dst)
		arr.Unshift(copies(f.contiguous(ins.A, ins.B))...)
	case opcodes.OP_ARR_SIZE:
		f.set(ins.Dst, values.NewInt(int64(e.asArray(f, ins.A).Size())))
	case opcodes.OP_ARR_SLICE:
		arr := e.asArray(f, ins.A)
		idxs := scalarsToInts(f.contiguous(ins.B, ins.Dst))
		f.set(ins.Dst, values.NewList(arr.Slice(idxs)...))
	case opcodes.OP_ARR_SET_FROM_LIST:
		arr := e.asArray(f, ins.Dst)
		arr.SetFromList(listFromOffset(f, ins))
	case opcodes.OP_HASH_NEW:
		f.set(ins.Dst, values.NewHash())
	case opcodes.OP_HASH_GET:
		h := e.asHash(f, ins.A)
		f.set(ins.Dst, h.Get(f.scalar(ins.B).ToStr()))
	case opcodes.OP_HASH_SET:
		h := e.asHash(f, ins.A)
		h.Set(f.scalar(ins.B).ToStr(), f.scalar(ins.Dst))
	case opcodes.OP_HASH_EXISTS:
		h := e.asHash(f, ins.A)
		f.set(ins.Dst, values.NewBool(h.Exists(f.scalar(ins.B).ToStr())))
	case opcodes.OP_HASH_DELETE:
		h := e.asHash(f, ins.A)
		f.set(ins.Dst, h.Delete(f.scalar(ins.B).ToStr()))
	case opcodes.OP_HASH_KEYS:
		h := e.asHash(f, ins.A)
		keys := h.Keys()
		out := make([]*values.Scalar, len(keys))
		for i, k := range keys {
			out[i] = values.NewString(k)
		}
		f.set(ins.Dst, values.NewList(out...))
	case opcodes.OP_HASH_VALUES:
		h := e.asHash(f, ins.A)
		f.set(ins.Dst, values.NewList(h.Values()...))
	case opcodes.OP_HASH_SLICE:
		h := e.asHash(f, ins.A)
		keys := scalarsToStrs(f.contiguous(ins.B, ins.Dst))
		f.set(ins.Dst, values.NewList(h.Slice(keys)...))
	case opcodes.OP_HASH_SLICE_DELETE:
		h := e.asHash(f, ins.A)
		keys := scalarsToStrs(f.contiguous(ins.B, ins.Dst))
		f.set(ins.Dst, values.NewList(h.SliceDelete(keys)...))
	case opcodes.OP_HASH_KV_SLICE:
		h := e.asHash(f, ins.A)
		keys := scalarsToStrs(f.contiguous(ins.B, ins.Dst))
		f.set(ins.Dst, values.NewList(h.KeyValueSlice(keys)...))
	case opcodes.OP_HASH_SET_FROM_LIST:
		h := e.asHash(f, ins.Dst)
		h.SetFromList(listFromOffset(f, ins))
	case opcodes.OP_LIST_FROM_REGS:
		f.set(ins.Dst, values.NewList(f.contiguous(ins.A, ins.B)...))
	case opcodes.OP_LIST_SLICE_FROM:
		items := values.Flatten(f.get(ins.A))
		idx := int(f.operand(ins.BKind, ins.B).ToScalar().ToInt())
		idx = normalizeIndex(idx, len(items))
		if idx < 0 || idx >= len(items) {
			f.set(ins.Dst, values.NewUndef())
		} else {
			f.set(ins.Dst, items[idx])
		}
	case opcodes.OP_RANGE_NEW:
		f.set(ins.Dst, values.NewRange(f.scalar(ins.A).ToInt(), f.scalar(ins.B).ToInt()))
	case opcodes.OP_HASH_EACH:
		h := e.asHash(f, ins.A)
		k, v, ok := h.EachNext()
		if !ok {
			f.set(ins.Dst, values.NewList())
		} else {
			f.set(ins.Dst, values.NewList(values.NewString(k), v))
		}
	default:
		return e.rtErr(f, "unhandled aggregate opcode %s", ins.Op)
	}
	return nil
}

// listFromOffset flattens the list operand A of a SET_FROM_LIST
// instruction, dropping the leading B elements when B carries an
// immediate offset (the destructuring-assignment form, e.g. the @rest
// in `my ($a, @rest) = ...` only slurps from its own position onward).
// A plain `my @a = ...`/`my %h = ...` leaves B as OperandNone, meaning
// no offset.
func listFromOffset(f *frame, ins opcodes.Instruction) []*values.Scalar {
	items := values.Flatten(f.get(ins.A))
	if ins.BKind == opcodes.OperandNone {
		return items
	}
	offset := int(f.operand(ins.BKind, ins.B).ToScalar().ToInt())
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	return items[offset:]
}

func normalizeIndex(i, size int) int {
	if i < 0 {
		return i + size
	}
	return i
}

// contiguous reads a run of count registers starting at first as
// scalars, the convention OP_MAKE_ARGS/OP_LIST_FROM_REGS and the
// container builtins share for "this opcode's variadic operand is a
// register window, not a single value."
func (f *frame) contiguous(first, count uint32) []*values.Scalar {
	out := make([]*values.Scalar, 0, count)
	for i := uint32(0); i < count; i++ {
		out = append(out, f.scalar(first+i))
	}
	return out
}

// copies returns fresh Scalars holding the current payloads of ss, for
// values that are stored (push/unshift) or returned rather than aliased.
func copies(ss []*values.Scalar) []*values.Scalar {
	if ss == nil {
		return nil
	}
	out := make([]*values.Scalar, len(ss))
	for i, s := range ss {
		cp := values.NewUndef()
		cp.Set(s)
		out[i] = cp
	}
	return out
}

func scalarsToInts(ss []*values.Scalar) []int {
	out := make([]int, len(ss))
	for i, s := range ss {
		out[i] = int(s.ToInt())
	}
	return out
}

func scalarsToStrs(ss []*values.Scalar) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ToStr()
	}
	return out
}

func (e *Engine) asArray(f *frame, reg uint32) *values.Array {
	if a, ok := f.get(reg).(*values.Array); ok {
		return a
	}
	a := values.NewArray()
	f.set(reg, a)
	return a
}

func (e *Engine) asHash(f *frame, reg uint32) *values.Hash {
	if h, ok := f.get(reg).(*values.Hash); ok {
		return h
	}
	h := values.NewHash()
	f.set(reg, h)
	return h
}

// ---- Group 8: reference ops ----

func (e *Engine) stepRef(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_MAKE_REF:
		f.set(ins.Dst, values.NewRef(f.get(ins.A)))
	case opcodes.OP_DEREF_SCALAR_STRICT, opcodes.OP_DEREF_SCALAR_NONSTRICT:
		s := f.scalar(ins.A)
		if !s.IsRef() {
			if ins.Op == opcodes.OP_DEREF_SCALAR_STRICT {
				return e.rtErr(f, "Not a SCALAR reference")
			}
			f.set(ins.Dst, values.NewUndef())
			return nil
		}
		target, ok := s.Deref().(*values.Scalar)
		if !ok {
			return e.rtErr(f, "Not a SCALAR reference")
		}
		f.set(ins.Dst, target)
	case opcodes.OP_DEREF_ARRAY:
		s := f.scalar(ins.A)
		if !s.IsRef() {
			return e.rtErr(f, "Not an ARRAY reference")
		}
		arr, ok := s.Deref().(*values.Array)
		if !ok {
			return e.rtErr(f, "Not an ARRAY reference")
		}
		f.set(ins.Dst, arr)
	case opcodes.OP_DEREF_HASH:
		s := f.scalar(ins.A)
		if !s.IsRef() {
			return e.rtErr(f, "Not a HASH reference")
		}
		h, ok := s.Deref().(*values.Hash)
		if !ok {
			return e.rtErr(f, "Not a HASH reference")
		}
		f.set(ins.Dst, h)
	case opcodes.OP_DEREF_GLOB:
		s := f.scalar(ins.A)
		if g, ok := s.Deref().(*values.Glob); ok {
			f.set(ins.Dst, g)
		} else {
			f.set(ins.Dst, values.NewGlob(s.ToStr()))
		}
	case opcodes.OP_BLESS:
		f.scalar(ins.A).Bless(f.operandStr(ins.BKind, ins.B))
		f.set(ins.Dst, f.scalar(ins.A))
	case opcodes.OP_REF_TYPE:
		s := f.scalar(ins.A)
		if !s.IsRef() {
			f.set(ins.Dst, values.NewString(""))
			return nil
		}
		if cls := s.BlessedAs(); cls != "" {
			f.set(ins.Dst, values.NewString(cls))
			return nil
		}
		f.set(ins.Dst, values.NewString(s.Deref().Kind().String()))
	case opcodes.OP_ISA:
		s := f.scalar(ins.A)
		class := f.operandStr(ins.BKind, ins.B)
		f.set(ins.Dst, values.NewBool(e.isaCheck(s.BlessedAs(), class)))
	case opcodes.OP_GET_TYPE:
		f.set(ins.Dst, values.NewString(f.get(ins.A).Kind().String()))
	default:
		return e.rtErr(f, "unhandled reference opcode %s", ins.Op)
	}
	return nil
}

// isaCheck walks @ISA depth-first (spec's simple-DFS MRO, not full C3 —
// see DESIGN.md) from class looking for target.
func (e *Engine) isaCheck(class, target string) bool {
	if class == "" {
		return false
	}
	if class == target {
		return true
	}
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(c string) bool {
		if seen[c] {
			return false
		}
		seen[c] = true
		if c == target {
			return true
		}
		isa := e.Globals.Array(c + "::ISA")
		for _, parent := range isa.ToList() {
			if walk(parent.ToStr()) {
				return true
			}
		}
		return false
	}
	return walk(class)
}

// resolveMethod finds class::method by DFS over @ISA, returning the
// defining package alongside the Code (needed for SUPER:: resolution,
// which anchors to the defining unit's compile-time package, spec
// §4.2).
func (e *Engine) resolveMethod(class, method string) (*values.Code, string) {
	seen := map[string]bool{}
	var walk func(string) (*values.Code, string)
	walk = func(c string) (*values.Code, string) {
		if seen[c] {
			return nil, ""
		}
		seen[c] = true
		if code := e.Globals.Code(c + "::" + method); code != nil {
			return code, c
		}
		for _, parent := range e.Globals.Array(c + "::ISA").ToList() {
			if code, defC := walk(parent.ToStr()); code != nil {
				return code, defC
			}
		}
		return nil, ""
	}
	return walk(class)
}

// ---- Group 9: call ops ----

func (e *Engine) stepCall(f *frame, ins opcodes.Instruction) (*runResult, bool, error) {
	switch ins.Op {
	case opcodes.OP_SET_CONTEXT:
		f.set(2, values.NewInt(int64(int32(ins.A))))
		return nil, false, nil
	case opcodes.OP_MAKE_ARGS:
		f.set(ins.Dst, values.NewArray())
		f.asArgArray(ins.Dst).Push(f.contiguous(ins.A, ins.B)...)
		return nil, false, nil
	case opcodes.OP_CALL_SUB:
		return e.doCallSub(f, ins)
	case opcodes.OP_CALL_METHOD:
		return e.doCallMethod(f, ins)
	}
	return nil, false, e.rtErr(f, "unhandled call opcode %s", ins.Op)
}

func (f *frame) asArgArray(reg uint32) *values.Array {
	a, _ := f.get(reg).(*values.Array)
	if a == nil {
		a = values.NewArray()
		f.set(reg, a)
	}
	return a
}

// resolveCallArgs flattens whatever value B names (a List built by
// OP_MAKE_ARGS/OP_LIST_FROM_REGS, or a bare Array) into the argument
// scalars a call passes as @_.
func (f *frame) resolveCallArgs(reg uint32) []*values.Scalar {
	if reg == 0 {
		return nil
	}
	return values.Flatten(f.get(reg))
}

func (e *Engine) wantFromTag(tag int64) runtime.WantArray { return wantArrayFromContext(tag) }

func (e *Engine) doCallSub(f *frame, ins opcodes.Instruction) (*runResult, bool, error) {
	args := f.resolveCallArgs(ins.B)
	want := e.wantFromTag(f.scalar(2).ToInt())

	var code *values.Code
	switch ins.AKind {
	case opcodes.OperandString:
		name := f.operandStr(ins.AKind, ins.A)
		if bi, ok := builtinTable[name]; ok {
			out, err := bi(e, f, args)
			if err != nil {
				return nil, false, err
			}
			f.set(ins.Dst, values.NewList(out...))
			return nil, false, nil
		}
		code = e.Globals.Code(e.qualify(f, name))
		if code == nil {
			return nil, false, e.rtErr(f, "Undefined subroutine &%s called", e.qualify(f, name))
		}
	default:
		s := f.scalar(ins.A)
		if c, ok := s.Deref().(*values.Code); ok {
			code = c
		} else {
			return nil, false, e.rtErr(f, "Not a CODE reference")
		}
	}
	out, err := e.invoke(code, args, want)
	if err != nil {
		return nil, false, err
	}
	f.set(ins.Dst, values.NewList(out...))
	return nil, false, nil
}

func (e *Engine) invoke(code *values.Code, args []*values.Scalar, want runtime.WantArray) ([]*values.Scalar, error) {
	unit, ok := code.Unit.(*compiler.CodeUnit)
	if !ok {
		return nil, fmt.Errorf("corrupt Code value: Unit is not a *compiler.CodeUnit")
	}
	return e.call(unit, args, want, code.Captured, code.Name)
}

// doCallMethod implements `$obj->method(args)` / `Class->method(args)`
// / `$obj->SUPER::method(args)`: invocant resolution, @ISA DFS method
// lookup. The compiler already prepends the invocant as @_[0] when it
// packages the argument list (spec §4.2), so B names that combined
// list directly; A names the method (a string-pool index for a
// literal name, or a register for `$obj->$methodname(...)`).
func (e *Engine) doCallMethod(f *frame, ins opcodes.Instruction) (*runResult, bool, error) {
	args := f.resolveCallArgs(ins.B)
	if len(args) == 0 {
		return nil, false, e.rtErr(f, "Can't call method without an invocant")
	}
	invocant := args[0]
	want := e.wantFromTag(f.scalar(2).ToInt())

	var methodName string
	if ins.AKind == opcodes.OperandReg {
		methodName = f.scalar(ins.A).ToStr()
	} else {
		methodName = f.operandStr(ins.AKind, ins.A)
	}

	var class string
	if invocant.IsRef() {
		class = invocant.BlessedAs()
		if class == "" {
			return nil, false, e.rtErr(f, "Can't call method %q on unblessed reference", methodName)
		}
	} else {
		class = invocant.ToStr()
	}

	isSuper := strings.HasPrefix(methodName, "SUPER::")
	var code *values.Code
	if isSuper {
		method := strings.TrimPrefix(methodName, "SUPER::")
		definingPkg := f.unit.Pragmas.Package
		for _, parent := range e.Globals.Array(definingPkg + "::ISA").ToList() {
			if c, _ := e.resolveMethod(parent.ToStr(), method); c != nil {
				code = c
				break
			}
		}
	} else {
		code, _ = e.resolveMethod(class, methodName)
	}
	if code == nil {
		return nil, false, e.rtErr(f, "Can't locate object method %q via package %q", methodName, class)
	}

	out, err := e.invoke(code, args, want)
	if err != nil {
		return nil, false, err
	}
	f.set(ins.Dst, values.NewList(out...))
	return nil, false, nil
}

// ---- Group 10: scope ops ----

func (e *Engine) stepScope(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_RETRIEVE_PERSISTENT_SCALAR, opcodes.OP_RETRIEVE_PERSISTENT_ARRAY, opcodes.OP_RETRIEVE_PERSISTENT_HASH:
		// `state` variable persistence is keyed by the CodeUnit's DebugID
		// plus the slot's name, surviving across repeated calls of the
		// same sub (spec §3.6's "persistent across invocations").
		key := f.unit.DebugID + "#" + f.operandStr(ins.AKind, ins.A)
		switch ins.Op {
		case opcodes.OP_RETRIEVE_PERSISTENT_SCALAR:
			f.set(ins.Dst, e.state(key, func() values.Value { return values.NewUndef() }))
		case opcodes.OP_RETRIEVE_PERSISTENT_ARRAY:
			f.set(ins.Dst, e.state(key, func() values.Value { return values.NewArray() }))
		case opcodes.OP_RETRIEVE_PERSISTENT_HASH:
			f.set(ins.Dst, e.state(key, func() values.Value { return values.NewHash() }))
		}
	case opcodes.OP_PUSH_LOCAL:
		// Only snapshots the current payload for restore; `local $x = v`
		// assigns the new value via a separate OP_SCALAR_ASSIGN the
		// compiler emits right after this one.
		e.Dynamic.PushLocal(f.scalar(ins.A))
	case opcodes.OP_SAVE_LOCAL_LEVEL:
		f.set(ins.Dst, values.NewInt(int64(e.Dynamic.SaveLevel())))
	case opcodes.OP_POP_TO_LOCAL_LEVEL:
		e.Dynamic.PopToLevel(int(f.scalar(ins.A).ToInt()))
	case opcodes.OP_PUSH_PACKAGE:
		e.Packages.Push(f.operandStr(ins.AKind, ins.A))
	case opcodes.OP_POP_PACKAGE:
		e.Packages.Pop()
	case opcodes.OP_CREATE_CLOSURE:
		codeVal, ok := f.operand(ins.AKind, ins.A).(*values.Code)
		if !ok {
			return e.rtErr(f, "OP_CREATE_CLOSURE operand is not a Code template")
		}
		unit, ok := codeVal.Unit.(*compiler.CodeUnit)
		if !ok {
			return e.rtErr(f, "corrupt closure template")
		}
		// ins.B is the first of a contiguous run (emitCaptureRegs) the
		// outer frame materialized the free variables into, one per
		// unit.Captured slot in the same order; unit.Captured[i].Reg
		// names a register in the *child's* space and is only meaningful
		// once that child frame exists, not here.
		captured := make([]values.Value, len(unit.Captured))
		for i := range unit.Captured {
			captured[i] = f.get(ins.B + uint32(i))
		}
		f.set(ins.Dst, values.NewCode(unit.Name, unit, captured))
	default:
		return e.rtErr(f, "unhandled scope opcode %s", ins.Op)
	}
	return nil
}

// state persists one `state`-declared slot across calls of the same
// lexical declaration site, backed by the Engine's own map so it
// outlives any single frame.
func (e *Engine) state(key string, init func() values.Value) values.Value {
	if e.persistentState == nil {
		e.persistentState = map[string]values.Value{}
	}
	if v, ok := e.persistentState[key]; ok {
		return v
	}
	v := init()
	e.persistentState[key] = v
	return v
}

// ---- Group 11: iterator creation ----

func (e *Engine) stepIterCreate(f *frame, ins opcodes.Instruction) error {
	if ins.Op != opcodes.OP_ITER_CREATE {
		return e.rtErr(f, "unhandled iterator opcode %s", ins.Op)
	}
	f.set(ins.Dst, values.NewIterator(values.Flatten(f.get(ins.A))))
	return nil
}

// ---- Group 12: exception ops ----

func (e *Engine) stepException(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_DIE:
		var payload *values.Scalar
		if ins.AKind != opcodes.OperandNone {
			payload = f.scalar(ins.A)
		} else {
			payload = values.NewString("Died")
		}
		pos := f.unit.PCToSource[f.pc]
		return NewDie(payload, pos)
	case opcodes.OP_EVAL_STRING:
		if e.StringCompile == nil {
			return e.rtErr(f, "eval STRING has no compiler wired in")
		}
		src := f.scalar(ins.A).ToStr()
		unit, err := e.StringCompile(src, f.unit.Pragmas.Package, f.unit.Pragmas)
		if err != nil {
			e.Error.SetValue(values.NewString(err.Error()))
			f.set(ins.Dst, values.NewUndef())
			return nil
		}
		want := e.wantFromTag(int64(ins.B))
		out, err := e.call(unit, nil, want, nil, "")
		if err != nil {
			if pe, ok := err.(*PerlException); ok {
				e.Error.SetValue(pe.Value)
			} else {
				e.Error.SetValue(values.NewString(err.Error()))
			}
			f.set(ins.Dst, values.NewUndef())
			return nil
		}
		e.Error.Clear()
		f.set(ins.Dst, values.NewList(out...))
		return nil
	}
	return e.rtErr(f, "unhandled exception opcode %s", ins.Op)
}

// ---- Group 13: regex & I/O delegates ----

func (e *Engine) stepRegexIO(f *frame, ins opcodes.Instruction) error {
	switch ins.Op {
	case opcodes.OP_MATCH:
		subject := f.scalar(ins.A).ToStr()
		rx := f.get(ins.B)
		pattern, flags := patternAndFlags(rx)
		listCtx := f.scalar(2).ToInt() == 2
		out, _, _, err := e.Regex.Match(e.Match, subject, pattern, flags, listCtx, strings.ContainsRune(flags, 'g'), 0)
		if err != nil {
			return e.rtErr(f, "regex error: %v", err)
		}
		if listCtx {
			f.set(ins.Dst, values.NewList(out...))
		} else if len(out) > 0 {
			f.set(ins.Dst, out[0])
		} else {
			f.set(ins.Dst, values.NewBool(false))
		}
	case opcodes.OP_SUBST:
		target := f.scalar(ins.Dst)
		rx := f.get(ins.A)
		pattern, flags := patternAndFlags(rx)
		replTemplate := f.scalar(ins.B).ToStr()
		global := strings.ContainsRune(flags, 'g')
		out, count, err := e.Regex.Subst(e.Match, target.ToStr(), pattern, flags, global, func(string) string {
			return runtime.InterpolateCaptures(e.Match, replTemplate)
		})
		if err != nil {
			return e.rtErr(f, "regex error: %v", err)
		}
		target.Set(values.NewString(out))
		f.set(ins.Dst, values.NewInt(int64(count)))
	case opcodes.OP_SPLIT:
		pattern, flags := patternAndFlags(f.get(ins.A))
		subject := f.scalar(ins.B).ToStr()
		out, err := e.Regex.Split(subject, pattern, flags, 0)
		if err != nil {
			return e.rtErr(f, "regex error: %v", err)
		}
		f.set(ins.Dst, values.NewList(out...))
	case opcodes.OP_PRINT:
		args := values.Flatten(f.get(ins.A))
		if err := e.IO.Print(nil, args); err != nil {
			return e.rtErr(f, "print: %v", err)
		}
		f.set(ins.Dst, values.NewBool(true))
	case opcodes.OP_SAY:
		args := values.Flatten(f.get(ins.A))
		if err := e.IO.Say(nil, args); err != nil {
			return e.rtErr(f, "print: %v", err)
		}
		f.set(ins.Dst, values.NewBool(true))
	case opcodes.OP_READLINE:
		var handle *values.Glob
		if ins.AKind != opcodes.OperandNone {
			handle, _ = f.get(ins.A).(*values.Glob)
		}
		line, ok := e.IO.Readline(handle)
		if !ok {
			f.set(ins.Dst, values.NewUndef())
		} else {
			f.set(ins.Dst, values.NewString(line+"\n"))
		}
	case opcodes.OP_OPEN:
		handle, _ := f.get(ins.A).(*values.Glob)
		if handle == nil {
			handle = values.NewGlob("ANON")
		}
		mode := f.scalar(ins.B).ToStr()
		path := f.operandStr(ins.BKind, ins.B)
		ok, err := e.IO.Open(handle, mode, path)
		if err != nil {
			return e.rtErr(f, "open: %v", err)
		}
		f.set(ins.Dst, values.NewBool(ok))
	default:
		return e.rtErr(f, "unhandled regex/IO opcode %s", ins.Op)
	}
	return nil
}

// patternAndFlags extracts a regex source+flags pair from whatever
// scalar-or-regex value a match/subst/split operand names: a
// PayloadRegex scalar (a qr// literal) carries both directly; any
// other value is stringified and used flag-less.
func patternAndFlags(v values.Value) (string, string) {
	if s, ok := v.(*values.Scalar); ok {
		if rx := s.Regex(); rx != nil {
			return rx.Source, rx.Flags
		}
		return s.ToStr(), ""
	}
	return v.ToScalar().ToStr(), ""
}

