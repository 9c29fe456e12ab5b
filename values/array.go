package values

// Array is Perl's `@a` aggregate: a 0-indexed, auto-extending sequence
// of aliasable Scalars.
type Array struct {
	Elems []*Scalar
}

func NewArray() *Array { return &Array{} }

func NewArrayFrom(items []*Scalar) *Array { return &Array{Elems: append([]*Scalar(nil), items...)} }

func (*Array) Kind() Kind { return KindArray }

func (a *Array) ToScalar() *Scalar { return NewInt(int64(len(a.Elems))) }

func (a *Array) ToList() []*Scalar { return a.Elems }

func (a *Array) IsDefined() bool { return true }

func (a *Array) ToBool() bool { return len(a.Elems) > 0 }

func (a *Array) Size() int { return len(a.Elems) }

func normIndex(i, size int) int {
	if i < 0 {
		i += size
	}
	return i
}

// Get returns the element at i, or a fresh undef if out of range (no
// autovivification on read).
func (a *Array) Get(i int) *Scalar {
	idx := normIndex(i, len(a.Elems))
	if idx < 0 || idx >= len(a.Elems) {
		return NewUndef()
	}
	return a.Elems[idx]
}

// GetForWrite returns the Scalar slot at i, extending (autovivifying)
// the array with undef slots as needed. Negative indices past the
// current end are an error in real Perl; here they simply clamp to 0.
func (a *Array) GetForWrite(i int) *Scalar {
	idx := i
	if idx < 0 {
		idx = normIndex(i, len(a.Elems))
		if idx < 0 {
			idx = 0
		}
	}
	for idx >= len(a.Elems) {
		a.Elems = append(a.Elems, NewUndef())
	}
	return a.Elems[idx]
}

func (a *Array) Set(i int, v *Scalar) {
	slot := a.GetForWrite(i)
	slot.Set(v)
}

func (a *Array) Push(vs ...*Scalar) {
	for _, v := range vs {
		a.Elems = append(a.Elems, NewAlias(v))
	}
}

func (a *Array) Pop() *Scalar {
	if len(a.Elems) == 0 {
		return NewUndef()
	}
	last := a.Elems[len(a.Elems)-1]
	a.Elems = a.Elems[:len(a.Elems)-1]
	return last
}

func (a *Array) Shift() *Scalar {
	if len(a.Elems) == 0 {
		return NewUndef()
	}
	first := a.Elems[0]
	a.Elems = a.Elems[1:]
	return first
}

func (a *Array) Unshift(vs ...*Scalar) {
	aliases := make([]*Scalar, len(vs))
	for i, v := range vs {
		aliases[i] = NewAlias(v)
	}
	a.Elems = append(aliases, a.Elems...)
}

// SetFromList replaces the array's contents with a fresh copy of items
// (spec §4.2's `set-from-list` protocol for `my @a = rhs`).
func (a *Array) SetFromList(items []*Scalar) {
	a.Elems = make([]*Scalar, len(items))
	for i, it := range items {
		cp := NewUndef()
		cp.Set(it)
		a.Elems[i] = cp
	}
}

// Slice returns the elements named by indices, for `@a[...]`.
func (a *Array) Slice(indices []int) []*Scalar {
	out := make([]*Scalar, len(indices))
	for i, idx := range indices {
		out[i] = a.Get(idx)
	}
	return out
}

// SliceSet assigns values to the indices named, extending as needed.
func (a *Array) SliceSet(indices []int, values []*Scalar) {
	for i, idx := range indices {
		var v *Scalar
		if i < len(values) {
			v = values[i]
		} else {
			v = NewUndef()
		}
		a.Set(idx, v)
	}
}
