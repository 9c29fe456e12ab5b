package values

import "testing"

// Round-trip law (spec §8): keys %h and values %h pair up in the same
// order, so $h{$keys[i]} eq $values[i].
func TestHashKeysValuesPairedOrder(t *testing.T) {
	h := NewHash()
	h.GetForWrite("a").Set(NewInt(1))
	h.GetForWrite("b").Set(NewInt(2))
	h.GetForWrite("c").Set(NewInt(3))

	list := h.ToList()
	if len(list) != 6 {
		t.Fatalf("expected 3 key/value pairs flattened, got %d entries", len(list))
	}
	for i := 0; i < len(list); i += 2 {
		key := list[i].ToStr()
		val := list[i+1]
		if h.Get(key).ToInt() != val.ToInt() {
			t.Fatalf("key %q paired with wrong value", key)
		}
	}

	keys, vals := h.Keys(), h.Values()
	if len(keys) != 3 || len(vals) != 3 {
		t.Fatalf("expected 3 keys and 3 values, got %d and %d", len(keys), len(vals))
	}
	for i, k := range keys {
		if h.Get(k).ToInt() != vals[i].ToInt() {
			t.Fatalf("keys()[%d] %q paired with wrong values()[%d]", i, k, i)
		}
	}
}

func TestHashDeleteAbsentKeyYieldsUndef(t *testing.T) {
	h := NewHash()
	if h.Delete("missing").IsDefined() {
		t.Fatal("deleting an absent key should yield undef")
	}
	got := h.Get("missing")
	if got.IsDefined() {
		t.Fatal("absent key should read as undef, not autovivify a value")
	}
	if h.Exists("missing") {
		t.Fatal("a plain Get must not autovivify the key")
	}
}
