package values

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PayloadKind tags the tagged union living inside a Cell (spec §3.1).
type PayloadKind byte

const (
	PayloadUndef PayloadKind = iota
	PayloadInt
	PayloadFloat
	PayloadString
	PayloadRef
	PayloadRegex
	PayloadVString
	PayloadIterator
)

// RefPayload is what a reference-valued scalar carries: a typed pointer
// at another value, plus the blessed package name (empty when the
// referent isn't blessed).
type RefPayload struct {
	Target  Value
	Blessed string
}

// Cell is the shared, mutable box a Scalar points at. Every alias of a
// Perl scalar variable holds a *Scalar wrapping the same *Cell; writing
// through one alias is immediately observable through every other
// (invariant 4, spec §8).
type Cell struct {
	Kind PayloadKind
	I    int64
	F    float64
	S    string
	Ref  *RefPayload
	Rx   *RegexPayload
	VStr []int64 // vstring payload: the dotted-number components of a v1.2.3 literal
}

// Scalar is a handle onto a Cell. It is the only Value kind with a
// mutable payload.
type Scalar struct {
	cell *Cell
}

// NewUndef returns a freshly allocated undef scalar.
func NewUndef() *Scalar { return &Scalar{cell: &Cell{Kind: PayloadUndef}} }

func NewInt(i int64) *Scalar { return &Scalar{cell: &Cell{Kind: PayloadInt, I: i}} }

func NewFloat(f float64) *Scalar { return &Scalar{cell: &Cell{Kind: PayloadFloat, F: f}} }

func NewString(s string) *Scalar { return &Scalar{cell: &Cell{Kind: PayloadString, S: s}} }

func NewBool(b bool) *Scalar {
	if b {
		return NewInt(1)
	}
	return NewString("")
}

// NewRef returns a scalar whose payload points at target (the runtime
// library's create-reference primitive, spec §4.4).
func NewRef(target Value) *Scalar {
	return &Scalar{cell: &Cell{Kind: PayloadRef, Ref: &RefPayload{Target: target}}}
}

// NewAlias returns a second handle sharing src's Cell: the alias-assign
// half of the copy-assign/alias-assign distinction (spec §3.1).
func NewAlias(src *Scalar) *Scalar { return &Scalar{cell: src.cell} }

// NewRegex wraps a compiled pattern as a regex-object scalar payload
// (the `qr//` literal's runtime value, spec §3.1).
func NewRegex(rx *RegexPayload) *Scalar { return &Scalar{cell: &Cell{Kind: PayloadRegex, Rx: rx}} }

// Regex returns this scalar's regex payload, or nil if it isn't one.
func (s *Scalar) Regex() *RegexPayload {
	if s.cell.Kind != PayloadRegex {
		return nil
	}
	return s.cell.Rx
}

// NewVString builds a vstring scalar (v1.2.3) from its dotted parts.
func NewVString(parts []int64) *Scalar { return &Scalar{cell: &Cell{Kind: PayloadVString, VStr: parts}} }

// Cell exposes the underlying storage, used by the dynamic-variable
// stack to snapshot/restore payloads around `local`.
func (s *Scalar) Cell() *Cell { return s.cell }

func (Scalar) Kind() Kind       { return KindScalar }
func (s *Scalar) ToScalar() *Scalar { return s }
func (s *Scalar) ToList() []*Scalar { return []*Scalar{s} }

func (s *Scalar) IsDefined() bool { return s.cell.Kind != PayloadUndef }

// Set performs a copy-assign: it overwrites this scalar's Cell contents
// with src's, without changing which Cell this Scalar's aliases share.
// This is what preserves closure/reference aliasing across assignment
// (spec §4.4: "Set(source) copies the payload, not the scalar identity").
func (s *Scalar) Set(src *Scalar) {
	*s.cell = *src.cell
}

// SetPayload installs a raw payload snapshot, used by the dynamic stack
// to restore a `local`-saved value on scope exit.
func (s *Scalar) SetPayload(c Cell) { *s.cell = c }

// PayloadSnapshot copies the current payload by value, used by the
// dynamic stack's `local` push.
func (s *Scalar) PayloadSnapshot() Cell { return *s.cell }

func (s *Scalar) IsRef() bool { return s.cell.Kind == PayloadRef }

// Deref returns the scalar/array/hash/code/glob this reference points
// at, or nil if this scalar is not a reference.
func (s *Scalar) Deref() Value {
	if s.cell.Kind != PayloadRef {
		return nil
	}
	return s.cell.Ref.Target
}

func (s *Scalar) BlessedAs() string {
	if s.cell.Kind != PayloadRef {
		return ""
	}
	return s.cell.Ref.Blessed
}

func (s *Scalar) Bless(class string) {
	if s.cell.Kind == PayloadRef {
		s.cell.Ref.Blessed = class
	}
}

func (s *Scalar) ToBool() bool {
	switch s.cell.Kind {
	case PayloadUndef:
		return false
	case PayloadInt:
		return s.cell.I != 0
	case PayloadFloat:
		return s.cell.F != 0 && !math.IsNaN(s.cell.F)
	case PayloadString:
		return s.cell.S != "" && s.cell.S != "0"
	case PayloadRef:
		return true
	case PayloadRegex:
		return true
	case PayloadVString:
		return len(s.cell.VStr) > 0
	default:
		return true
	}
}

func (s *Scalar) ToInt() int64 {
	switch s.cell.Kind {
	case PayloadUndef:
		return 0
	case PayloadInt:
		return s.cell.I
	case PayloadFloat:
		return int64(s.cell.F)
	case PayloadString:
		return stringToInt(s.cell.S)
	case PayloadRef:
		return 1
	default:
		return 0
	}
}

// vstringToString renders a vstring's dotted components the way Perl's
// %vd formats them, which is also how a vstring stringifies bare.
func vstringToString(parts []int64) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatInt(p, 10))
	}
	return b.String()
}

func (s *Scalar) ToFloat() float64 {
	switch s.cell.Kind {
	case PayloadUndef:
		return 0
	case PayloadInt:
		return float64(s.cell.I)
	case PayloadFloat:
		return s.cell.F
	case PayloadString:
		return stringToFloat(s.cell.S)
	default:
		return 0
	}
}

func (s *Scalar) ToStr() string {
	switch s.cell.Kind {
	case PayloadUndef:
		return ""
	case PayloadInt:
		return strconv.FormatInt(s.cell.I, 10)
	case PayloadFloat:
		return strconv.FormatFloat(s.cell.F, 'g', -1, 64)
	case PayloadString:
		return s.cell.S
	case PayloadRef:
		name := "SCALAR"
		if s.cell.Ref.Target != nil {
			name = s.cell.Ref.Target.Kind().String()
		}
		prefix := ""
		if s.cell.Ref.Blessed != "" {
			prefix = s.cell.Ref.Blessed + "="
		}
		return fmt.Sprintf("%s%s(%p)", prefix, name, s.cell.Ref)
	case PayloadRegex:
		if s.cell.Rx == nil {
			return "(?:)"
		}
		return fmt.Sprintf("(?^%s:%s)", s.cell.Rx.Flags, s.cell.Rx.Source)
	case PayloadVString:
		return vstringToString(s.cell.VStr)
	default:
		return ""
	}
}

// IsNumericString reports whether the string payload parses entirely as
// a Perl numeric literal (used to pick numeric vs. string comparison).
func (s *Scalar) IsNumericString() bool {
	if s.cell.Kind != PayloadString {
		return s.cell.Kind == PayloadInt || s.cell.Kind == PayloadFloat
	}
	str := strings.TrimSpace(s.cell.S)
	if str == "" {
		return false
	}
	_, err := strconv.ParseFloat(str, 64)
	return err == nil
}

func (s *Scalar) IsNumeric() bool {
	return s.cell.Kind == PayloadInt || s.cell.Kind == PayloadFloat
}

func stringToInt(str string) int64 {
	f := stringToFloat(str)
	return int64(f)
}

func stringToFloat(str string) float64 {
	str = strings.TrimSpace(str)
	if str == "" {
		return 0
	}
	i := 0
	n := len(str)
	start := i
	if i < n && (str[i] == '+' || str[i] == '-') {
		i++
	}
	hasDigits := false
	for i < n && str[i] >= '0' && str[i] <= '9' {
		i++
		hasDigits = true
	}
	if i < n && str[i] == '.' {
		i++
		for i < n && str[i] >= '0' && str[i] <= '9' {
			i++
			hasDigits = true
		}
	}
	if hasDigits && i < n && (str[i] == 'e' || str[i] == 'E') {
		j := i + 1
		if j < n && (str[j] == '+' || str[j] == '-') {
			j++
		}
		if j < n && str[j] >= '0' && str[j] <= '9' {
			for j < n && str[j] >= '0' && str[j] <= '9' {
				j++
			}
			i = j
		}
	}
	if !hasDigits {
		return 0
	}
	f, err := strconv.ParseFloat(str[start:i], 64)
	if err != nil {
		return 0
	}
	return f
}
