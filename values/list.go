package values

// List is the flattened intermediate value produced by list-context
// expressions (the parenthesized-list, function argument lists, `@_`,
// and multi-value returns). It is always a flat sequence of Scalars —
// Flatten performs Perl's list-flattening rule (arrays/hashes/lists
// expand in place; scalars stay put).
type List struct {
	Items []*Scalar
}

func NewList(items ...*Scalar) *List { return &List{Items: items} }

func (*List) Kind() Kind { return KindList }

func (l *List) ToScalar() *Scalar {
	// In scalar context a list literal yields its last element (the
	// comma operator); an empty list yields undef.
	if len(l.Items) == 0 {
		return NewUndef()
	}
	return l.Items[len(l.Items)-1]
}

func (l *List) ToList() []*Scalar { return l.Items }

func (l *List) IsDefined() bool { return len(l.Items) > 0 }

func (l *List) ToBool() bool { return len(l.Items) > 0 }

// Flatten expands v's list representation into a flat Scalar sequence
// per Perl's list-flattening rule.
func Flatten(v Value) []*Scalar {
	switch t := v.(type) {
	case *List:
		out := make([]*Scalar, 0, len(t.Items))
		for _, it := range t.Items {
			out = append(out, it)
		}
		return out
	default:
		return v.ToList()
	}
}

// FlattenAll flattens and concatenates several values in order, used to
// build @_ and list-assignment RHS values.
func FlattenAll(vs ...Value) []*Scalar {
	out := make([]*Scalar, 0, len(vs))
	for _, v := range vs {
		out = append(out, Flatten(v)...)
	}
	return out
}
