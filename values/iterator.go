package values

// Iterator is the runtime state behind a `foreach` loop: a flattened,
// already-materialized element sequence plus a cursor. It exists as its
// own Value kind so OP_ITER_CREATE can hand the VM a normal register
// handle (spec §4.2's "registers hold Value handles" rule extends to
// loop state, not just data).
type Iterator struct {
	items []*Scalar
	pos   int
}

// NewIterator wraps items (already flattened list-context elements) for
// stepping. Each element is handed out as-is, not copied, so `foreach my
// $x (@a) { $x++ }` aliases into the source array (spec §3.1).
func NewIterator(items []*Scalar) *Iterator { return &Iterator{items: items} }

func (*Iterator) Kind() Kind { return KindIterator }

func (it *Iterator) ToScalar() *Scalar { return NewInt(int64(len(it.items) - it.pos)) }

func (it *Iterator) ToList() []*Scalar { return it.items[it.pos:] }

func (it *Iterator) IsDefined() bool { return true }

func (it *Iterator) ToBool() bool { return it.pos < len(it.items) }

// Next returns the next element and true, or (nil, false) when exhausted.
func (it *Iterator) Next() (*Scalar, bool) {
	if it.pos >= len(it.items) {
		return nil, false
	}
	v := it.items[it.pos]
	it.pos++
	return v, true
}
