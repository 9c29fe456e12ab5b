package values

import "testing"

func TestAliasSharesPayload(t *testing.T) {
	x := NewInt(10)
	alias := NewAlias(x)
	alias.Set(NewInt(99))
	if x.ToInt() != 99 {
		t.Fatalf("expected alias write to be visible through original, got %d", x.ToInt())
	}
}

func TestCopyAssignDoesNotAlias(t *testing.T) {
	x := NewInt(10)
	y := NewInt(0)
	y.Set(x)
	x.Set(NewInt(5))
	if y.ToInt() != 10 {
		t.Fatalf("copy-assigned scalar should not see later writes to source, got %d", y.ToInt())
	}
}

func TestRefDerefIdentity(t *testing.T) {
	x := NewInt(7)
	ref := NewRef(x)
	if !ref.IsRef() {
		t.Fatal("NewRef should produce a reference payload")
	}
	deref := ref.Deref().ToScalar()
	deref.Set(NewInt(8))
	if x.ToInt() != 8 {
		t.Fatalf("write through dereferenced scalar should be visible at the original, got %d", x.ToInt())
	}
}

func TestUndefIsNotDefined(t *testing.T) {
	u := NewUndef()
	if u.IsDefined() {
		t.Fatal("fresh undef scalar should not be defined")
	}
	if u.ToBool() {
		t.Fatal("undef should be falsy")
	}
}
