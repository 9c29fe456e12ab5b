package values

// Hash is Perl's `%h` aggregate. Key insertion order is tracked so
// `keys`/`values` produce paired-order lists (spec §8's round-trip law)
// even though Perl itself does not guarantee hash order; this
// implementation simply guarantees *a* stable, self-consistent order.
type Hash struct {
	order  []string
	slots  map[string]*Scalar
	cursor int // each()'s position into order; reset whenever keys/values is called
}

func NewHash() *Hash { return &Hash{slots: make(map[string]*Scalar)} }

func (*Hash) Kind() Kind { return KindHash }

// ToScalar reports a hash in boolean-ish numeric form: Perl's bucket
// ratio string is not modeled; element count is used instead.
func (h *Hash) ToScalar() *Scalar { return NewInt(int64(len(h.order))) }

func (h *Hash) ToList() []*Scalar {
	out := make([]*Scalar, 0, len(h.order)*2)
	for _, k := range h.order {
		out = append(out, NewString(k), h.slots[k])
	}
	return out
}

func (h *Hash) IsDefined() bool { return true }

func (h *Hash) ToBool() bool { return len(h.order) > 0 }

func (h *Hash) Size() int { return len(h.order) }

func (h *Hash) Exists(key string) bool {
	_, ok := h.slots[key]
	return ok
}

// Get returns the value at key, or a fresh undef if absent (no
// autovivification on read).
func (h *Hash) Get(key string) *Scalar {
	if v, ok := h.slots[key]; ok {
		return v
	}
	return NewUndef()
}

// GetForWrite returns the Scalar slot for key, autovivifying an undef
// entry (and recording insertion order) if absent.
func (h *Hash) GetForWrite(key string) *Scalar {
	if v, ok := h.slots[key]; ok {
		return v
	}
	v := NewUndef()
	h.slots[key] = v
	h.order = append(h.order, key)
	return v
}

func (h *Hash) Set(key string, v *Scalar) {
	h.GetForWrite(key).Set(v)
}

func (h *Hash) Delete(key string) *Scalar {
	v, ok := h.slots[key]
	if !ok {
		// Open question resolved per spec §9: absent key deletes to undef.
		return NewUndef()
	}
	delete(h.slots, key)
	for i, k := range h.order {
		if k == key {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	return v
}

func (h *Hash) Keys() []string {
	h.cursor = 0
	return append([]string(nil), h.order...)
}

func (h *Hash) Values() []*Scalar {
	h.cursor = 0
	out := make([]*Scalar, len(h.order))
	for i, k := range h.order {
		out[i] = h.slots[k]
	}
	return out
}

// EachNext advances this hash's own each()-cursor and returns the next
// (key, value) pair, or ok=false once every entry has been visited (at
// which point the cursor resets, matching Perl's each() wraparound).
func (h *Hash) EachNext() (key string, val *Scalar, ok bool) {
	if h.cursor >= len(h.order) {
		h.cursor = 0
		return "", nil, false
	}
	k := h.order[h.cursor]
	h.cursor++
	return k, h.slots[k], true
}

// SetFromList replaces the hash's contents from a flat key,value,...
// sequence (spec §4.2's `set-from-list` for `my %h = rhs`).
func (h *Hash) SetFromList(items []*Scalar) {
	h.order = nil
	h.slots = make(map[string]*Scalar)
	for i := 0; i+1 < len(items); i += 2 {
		key := items[i].ToStr()
		cp := NewUndef()
		cp.Set(items[i+1])
		if !h.Exists(key) {
			h.order = append(h.order, key)
		}
		h.slots[key] = cp
	}
	if len(items)%2 == 1 {
		key := items[len(items)-1].ToStr()
		if !h.Exists(key) {
			h.order = append(h.order, key)
		}
		h.slots[key] = NewUndef()
	}
}

// Slice returns the values at the named keys, undef for absent ones
// (for `@h{...}`).
func (h *Hash) Slice(keys []string) []*Scalar {
	out := make([]*Scalar, len(keys))
	for i, k := range keys {
		out[i] = h.Get(k)
	}
	return out
}

func (h *Hash) SliceSet(keys []string, values []*Scalar) {
	for i, k := range keys {
		var v *Scalar
		if i < len(values) {
			v = values[i]
		} else {
			v = NewUndef()
		}
		h.Set(k, v)
	}
}

// SliceDelete removes each named key and returns the deleted values in
// order, undef for keys that were absent (spec §9's open question).
func (h *Hash) SliceDelete(keys []string) []*Scalar {
	out := make([]*Scalar, len(keys))
	for i, k := range keys {
		out[i] = h.Delete(k)
	}
	return out
}

// KeyValueSlice returns a flat key,value,... sequence for the named
// keys (the `%h{...}` key-value slice form).
func (h *Hash) KeyValueSlice(keys []string) []*Scalar {
	out := make([]*Scalar, 0, len(keys)*2)
	for _, k := range keys {
		out = append(out, NewString(k), h.Get(k))
	}
	return out
}
