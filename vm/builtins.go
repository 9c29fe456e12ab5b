package vm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-perl/plvm/runtime"
	"github.com/go-perl/plvm/values"
)

// builtinFunc is one value-only builtin: it receives its already
// flattened argument list and the calling frame (for its context tag
// and diagnostics), and returns a list-context result (the caller narrows
// it to scalar context itself via ToScalar on a single-element list,
// matching every other call's return convention).
type builtinFunc func(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error)

// builtinTable holds every core builtin that is NOT one of the
// container-mutating/dedicated-opcode forms the compiler lowers
// directly (push/pop/shift/unshift/keys/values/each/print/say/split —
// see compiler/builtins.go); those never reach OP_CALL_SUB at all.
var builtinTable = map[string]builtinFunc{
	"sprintf":  biSprintf,
	"join":     biJoin,
	"uc":       biUc,
	"lc":       biLc,
	"ucfirst":  biUcfirst,
	"lcfirst":  biLcfirst,
	"reverse":  biReverse,
	"sort":     biSort,
	"substr":   biSubstr,
	"index":    biIndex,
	"chomp":    biChomp,
	"chop":     biChop,
	"abs":      biAbs,
	"int":      biInt,
	"sqrt":     biSqrt,
	"chr":      biChr,
	"ord":      biOrd,
	"length":   biLength,
	"defined":  biDefined,
	"ref":      biRef,
	"scalar":   biScalar,
	"wantarray": biWantarray,
	"warn":     biWarn,
	"die":      biDie,
	"map":      biMap,
	"grep":     biGrep,
}

func arg(args []*values.Scalar, i int) *values.Scalar {
	if i < len(args) {
		return args[i]
	}
	return values.NewUndef()
}

func biSprintf(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	if len(args) == 0 {
		return []*values.Scalar{values.NewString("")}, nil
	}
	format := args[0].ToStr()
	rest := args[1:]
	out, err := perlSprintf(format, rest)
	if err != nil {
		return nil, e.rtErr(f, "%v", err)
	}
	return []*values.Scalar{values.NewString(out)}, nil
}

// perlSprintf translates the common %s/%d/%f/%x/%o/%b/%e/%g directives
// (spec's sprintf delegate) onto Go's fmt.Sprintf, which already
// implements the same conversion grammar for these verbs.
func perlSprintf(format string, args []*values.Scalar) (string, error) {
	var b strings.Builder
	argi := 0
	next := func() *values.Scalar {
		if argi < len(args) {
			v := args[argi]
			argi++
			return v
		}
		return values.NewUndef()
	}
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(format) && strings.ContainsRune("-+0 #123456789.", rune(format[j])) {
			j++
		}
		if j >= len(format) {
			b.WriteByte('%')
			break
		}
		verb := format[j]
		spec := "%" + format[i+1:j+1]
		switch verb {
		case '%':
			b.WriteByte('%')
		case 'd', 'i':
			fmt.Fprintf(&b, strings.Replace(spec, string(verb), "d", 1), next().ToInt())
		case 'u':
			fmt.Fprintf(&b, strings.Replace(spec, "u", "d", 1), next().ToInt())
		case 's':
			fmt.Fprintf(&b, spec, next().ToStr())
		case 'f', 'F', 'e', 'E', 'g', 'G':
			fmt.Fprintf(&b, spec, next().ToFloat())
		case 'x', 'X', 'o', 'b':
			fmt.Fprintf(&b, spec, next().ToInt())
		case 'c':
			b.WriteRune(rune(next().ToInt()))
		default:
			b.WriteString(spec)
		}
		i = j
	}
	return b.String(), nil
}

func biJoin(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	if len(args) == 0 {
		return []*values.Scalar{values.NewString("")}, nil
	}
	sep := args[0].ToStr()
	parts := make([]string, len(args)-1)
	for i, a := range args[1:] {
		parts[i] = a.ToStr()
	}
	return []*values.Scalar{values.NewString(strings.Join(parts, sep))}, nil
}

func biUc(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	return []*values.Scalar{values.NewString(strings.ToUpper(dollarUnderscoreOr(f, args).ToStr()))}, nil
}

func biLc(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	return []*values.Scalar{values.NewString(strings.ToLower(dollarUnderscoreOr(f, args).ToStr()))}, nil
}

func biUcfirst(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	s := dollarUnderscoreOr(f, args).ToStr()
	if s == "" {
		return []*values.Scalar{values.NewString("")}, nil
	}
	r := []rune(s)
	r[0] = []rune(strings.ToUpper(string(r[0])))[0]
	return []*values.Scalar{values.NewString(string(r))}, nil
}

func biLcfirst(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	s := dollarUnderscoreOr(f, args).ToStr()
	if s == "" {
		return []*values.Scalar{values.NewString("")}, nil
	}
	r := []rune(s)
	r[0] = []rune(strings.ToLower(string(r[0])))[0]
	return []*values.Scalar{values.NewString(string(r))}, nil
}

// dollarUnderscoreOr returns the first argument, or undef when there is
// none; it does not read `$_`.
func dollarUnderscoreOr(f *frame, args []*values.Scalar) *values.Scalar {
	if len(args) > 0 {
		return args[0]
	}
	return values.NewUndef()
}

func biReverse(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	listCtx := f.scalar(2).ToInt() == 2
	if !listCtx {
		var s string
		for _, a := range args {
			s += a.ToStr()
		}
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return []*values.Scalar{values.NewString(string(runes))}, nil
	}
	out := make([]*values.Scalar, len(args))
	for i, a := range args {
		out[len(args)-1-i] = a
	}
	return out, nil
}

func biSort(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	out := append([]*values.Scalar(nil), args...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ToStr() < out[j].ToStr() })
	return out, nil
}

func biSubstr(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	str := []rune(arg(args, 0).ToStr())
	n := len(str)
	off := int(arg(args, 1).ToInt())
	if off < 0 {
		off += n
	}
	if off < 0 {
		off = 0
	}
	if off > n {
		off = n
	}
	length := n - off
	if len(args) > 2 {
		length = int(arg(args, 2).ToInt())
		if length < 0 {
			length = n - off + length
		}
	}
	end := off + length
	if end > n {
		end = n
	}
	if end < off {
		end = off
	}
	if len(args) > 3 {
		replacement := arg(args, 3).ToStr()
		newStr := string(str[:off]) + replacement + string(str[end:])
		return []*values.Scalar{values.NewString(newStr)}, nil
	}
	return []*values.Scalar{values.NewString(string(str[off:end]))}, nil
}

func biIndex(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	haystack := arg(args, 0).ToStr()
	needle := arg(args, 1).ToStr()
	pos := 0
	if len(args) > 2 {
		pos = int(arg(args, 2).ToInt())
		if pos < 0 {
			pos = 0
		}
		if pos > len(haystack) {
			pos = len(haystack)
		}
	}
	idx := strings.Index(haystack[pos:], needle)
	if idx < 0 {
		return []*values.Scalar{values.NewInt(-1)}, nil
	}
	return []*values.Scalar{values.NewInt(int64(idx + pos))}, nil
}

// biChomp/biChop mutate their argument scalar in place (spec's
// aliasing rule for unary string ops that modify their operand) and
// return the count/character removed.
func biChomp(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	count := int64(0)
	for _, a := range args {
		s := a.ToStr()
		if strings.HasSuffix(s, "\n") {
			a.Set(values.NewString(strings.TrimSuffix(s, "\n")))
			count++
		}
	}
	return []*values.Scalar{values.NewInt(count)}, nil
}

func biChop(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	var last string
	for _, a := range args {
		r := []rune(a.ToStr())
		if len(r) == 0 {
			continue
		}
		last = string(r[len(r)-1])
		a.Set(values.NewString(string(r[:len(r)-1])))
	}
	return []*values.Scalar{values.NewString(last)}, nil
}

func biAbs(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	return []*values.Scalar{values.NewFloat(math.Abs(dollarUnderscoreOr(f, args).ToFloat()))}, nil
}

func biInt(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	return []*values.Scalar{values.NewInt(int64(dollarUnderscoreOr(f, args).ToFloat()))}, nil
}

func biSqrt(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	v := dollarUnderscoreOr(f, args).ToFloat()
	if v < 0 {
		return nil, e.rtErr(f, "Can't take sqrt of %s", strconv.FormatFloat(v, 'g', -1, 64))
	}
	return []*values.Scalar{values.NewFloat(math.Sqrt(v))}, nil
}

func biChr(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	return []*values.Scalar{values.NewString(string(rune(dollarUnderscoreOr(f, args).ToInt())))}, nil
}

func biOrd(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	s := []rune(dollarUnderscoreOr(f, args).ToStr())
	if len(s) == 0 {
		return []*values.Scalar{values.NewInt(0)}, nil
	}
	return []*values.Scalar{values.NewInt(int64(s[0]))}, nil
}

func biLength(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	a := dollarUnderscoreOr(f, args)
	if !a.IsDefined() {
		return []*values.Scalar{values.NewUndef()}, nil
	}
	return []*values.Scalar{values.NewInt(values.Length(a))}, nil
}

func biDefined(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	return []*values.Scalar{values.NewBool(dollarUnderscoreOr(f, args).IsDefined())}, nil
}

func biRef(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	s := dollarUnderscoreOr(f, args)
	if !s.IsRef() {
		return []*values.Scalar{values.NewString("")}, nil
	}
	if cls := s.BlessedAs(); cls != "" {
		return []*values.Scalar{values.NewString(cls)}, nil
	}
	return []*values.Scalar{values.NewString(s.Deref().Kind().String())}, nil
}

func biScalar(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	if len(args) == 0 {
		return []*values.Scalar{values.NewUndef()}, nil
	}
	return []*values.Scalar{values.NewInt(int64(len(args)))}, nil
}

func biWantarray(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	switch e.wantFromTag(f.scalar(2).ToInt()) {
	case runtime.WantList:
		return []*values.Scalar{values.NewBool(true)}, nil
	case runtime.WantScalar:
		return []*values.Scalar{values.NewBool(false)}, nil
	default:
		return []*values.Scalar{values.NewUndef()}, nil
	}
}

func biWarn(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	msg := ""
	for _, a := range args {
		msg += a.ToStr()
	}
	if msg == "" {
		msg = "Warning: something's wrong"
	}
	if !strings.HasSuffix(msg, "\n") {
		pos := f.unit.PCToSource[f.pc]
		msg = fmt.Sprintf("%s at %s line %d.\n", msg, pos.File, pos.Line)
	}
	fmt.Fprint(e.IO.Stderr, msg)
	return []*values.Scalar{values.NewBool(true)}, nil
}

func biDie(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	var payload *values.Scalar
	if len(args) > 0 {
		payload = args[0]
	} else {
		payload = values.NewString("Died")
	}
	return nil, NewDie(payload, f.unit.PCToSource[f.pc])
}

// coderefArg resolves args[0] to the Code it names, for map/grep's
// leading BLOCK/coderef operand.
func coderefArg(e *Engine, f *frame, args []*values.Scalar) (*values.Code, error) {
	if len(args) == 0 {
		return nil, e.rtErr(f, "Not enough arguments")
	}
	code, ok := args[0].Deref().(*values.Code)
	if !ok {
		return nil, e.rtErr(f, "Not a CODE reference")
	}
	return code, nil
}

// biMap applies its leading coderef to each remaining element (passed
// as that call's sole @_ element, a pragmatic stand-in for aliasing
// $_ — see DESIGN.md) and flattens the collected per-element results.
func biMap(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	code, err := coderefArg(e, f, args)
	if err != nil {
		return nil, err
	}
	var out []*values.Scalar
	for _, item := range args[1:] {
		res, err := e.invoke(code, []*values.Scalar{item}, runtime.WantList)
		if err != nil {
			return nil, err
		}
		out = append(out, res...)
	}
	return out, nil
}

// biGrep applies its leading coderef to each remaining element and
// keeps the ones whose call returns a true final value.
func biGrep(e *Engine, f *frame, args []*values.Scalar) ([]*values.Scalar, error) {
	code, err := coderefArg(e, f, args)
	if err != nil {
		return nil, err
	}
	var out []*values.Scalar
	for _, item := range args[1:] {
		res, err := e.invoke(code, []*values.Scalar{item}, runtime.WantScalar)
		if err != nil {
			return nil, err
		}
		if len(res) > 0 && res[len(res)-1].ToBool() {
			out = append(out, item)
		}
	}
	return out, nil
}
