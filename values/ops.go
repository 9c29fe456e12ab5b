package values

import "strings"

// This file is the scalar half of the runtime library spec §4.4 asks
// for: every binary arithmetic, string, and comparison primitive the
// VM's opcode handlers call into. Each function takes *Scalar
// operands; none of them mutate their operands.

func numeric(a, b *Scalar) (af, bf float64, bothInt bool, ai, bi int64) {
	ai, bi = a.ToInt(), b.ToInt()
	af, bf = a.ToFloat(), b.ToFloat()
	bothInt = !a.isFloaty() && !b.isFloaty()
	return
}

func (s *Scalar) isFloaty() bool {
	if s.cell.Kind == PayloadFloat {
		return true
	}
	if s.cell.Kind == PayloadString {
		return strings.ContainsAny(s.cell.S, ".eE") && s.IsNumericString()
	}
	return false
}

func Add(a, b *Scalar) *Scalar {
	af, bf, bothInt, ai, bi := numeric(a, b)
	if bothInt {
		return NewInt(ai + bi)
	}
	return NewFloat(af + bf)
}

func Sub(a, b *Scalar) *Scalar {
	af, bf, bothInt, ai, bi := numeric(a, b)
	if bothInt {
		return NewInt(ai - bi)
	}
	return NewFloat(af - bf)
}

func Mul(a, b *Scalar) *Scalar {
	af, bf, bothInt, ai, bi := numeric(a, b)
	if bothInt {
		return NewInt(ai * bi)
	}
	return NewFloat(af * bf)
}

func Div(a, b *Scalar) *Scalar {
	af, bf, bothInt, ai, bi := numeric(a, b)
	if bf == 0 {
		return NewFloat(af / bf) // +Inf/-Inf/NaN, matching Perl's die-free core path
	}
	if bothInt && ai%bi == 0 {
		return NewInt(ai / bi)
	}
	return NewFloat(af / bf)
}

func Mod(a, b *Scalar) *Scalar {
	bi := b.ToInt()
	if bi == 0 {
		return NewInt(0)
	}
	ai := a.ToInt()
	m := ai % bi
	if m != 0 && (m < 0) != (bi < 0) {
		m += bi
	}
	return NewInt(m)
}

func Pow(a, b *Scalar) *Scalar {
	base, exp := a.ToFloat(), b.ToFloat()
	result := powFloat(base, exp)
	if result == float64(int64(result)) && !a.isFloaty() && !b.isFloaty() && exp >= 0 {
		return NewInt(int64(result))
	}
	return NewFloat(result)
}

func powFloat(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	if exp < 0 {
		return 1 / powFloat(base, -exp)
	}
	result := 1.0
	for exp > 0 {
		if int64(exp)%2 == 1 {
			result *= base
		}
		base *= base
		exp = float64(int64(exp) / 2)
	}
	return result
}

func Neg(a *Scalar) *Scalar {
	if a.isFloaty() {
		return NewFloat(-a.ToFloat())
	}
	return NewInt(-a.ToInt())
}

func Concat(a, b *Scalar) *Scalar { return NewString(a.ToStr() + b.ToStr()) }

func Repeat(a *Scalar, n int64) *Scalar {
	if n <= 0 {
		return NewString("")
	}
	return NewString(strings.Repeat(a.ToStr(), int(n)))
}

func BitAnd(a, b *Scalar) *Scalar { return NewInt(a.ToInt() & b.ToInt()) }
func BitOr(a, b *Scalar) *Scalar  { return NewInt(a.ToInt() | b.ToInt()) }
func BitXor(a, b *Scalar) *Scalar { return NewInt(a.ToInt() ^ b.ToInt()) }
func Shl(a, b *Scalar) *Scalar    { return NewInt(a.ToInt() << uint64(b.ToInt())) }
func Shr(a, b *Scalar) *Scalar    { return NewInt(a.ToInt() >> uint64(b.ToInt())) }
func BitNot(a *Scalar) *Scalar    { return NewInt(^a.ToInt()) }

// NumEqual/StrEqual etc. implement the numeric (==) vs. string (eq)
// comparison operator families Perl keeps distinct.

func NumEqual(a, b *Scalar) bool  { return a.ToFloat() == b.ToFloat() }
func NumLess(a, b *Scalar) bool   { return a.ToFloat() < b.ToFloat() }
func NumLessEq(a, b *Scalar) bool { return a.ToFloat() <= b.ToFloat() }
func NumGreater(a, b *Scalar) bool { return a.ToFloat() > b.ToFloat() }
func NumGreaterEq(a, b *Scalar) bool { return a.ToFloat() >= b.ToFloat() }

// NumCompare is the spaceship (<=>) three-valued compare.
func NumCompare(a, b *Scalar) int {
	af, bf := a.ToFloat(), b.ToFloat()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func StrEqual(a, b *Scalar) bool   { return a.ToStr() == b.ToStr() }
func StrLess(a, b *Scalar) bool    { return a.ToStr() < b.ToStr() }
func StrLessEq(a, b *Scalar) bool  { return a.ToStr() <= b.ToStr() }
func StrGreater(a, b *Scalar) bool { return a.ToStr() > b.ToStr() }
func StrGreaterEq(a, b *Scalar) bool { return a.ToStr() >= b.ToStr() }

// StrCompare is the `cmp` three-valued compare.
func StrCompare(a, b *Scalar) int {
	as, bs := a.ToStr(), b.ToStr()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func Length(a *Scalar) int64 { return int64(len([]rune(a.ToStr()))) }
