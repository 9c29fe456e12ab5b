package runtime

import (
	"testing"

	"github.com/go-perl/plvm/values"
)

// Invariant (spec §8 property 3): every dynamic-stack push below a
// scope boundary is popped by scope exit, restoring the prior payload.
func TestPopToLevelRestoresInReverseOrder(t *testing.T) {
	g := values.NewString("outer")
	d := NewDynamicStack()

	level := d.SaveLevel()
	d.PushLocal(g)
	g.Set(values.NewString("inner-1"))

	inner := d.SaveLevel()
	d.PushLocal(g)
	g.Set(values.NewString("inner-2"))
	d.PopToLevel(inner)

	if g.ToStr() != "inner-1" {
		t.Fatalf("expected restore to inner-1 after nested pop, got %q", g.ToStr())
	}

	d.PopToLevel(level)
	if g.ToStr() != "outer" {
		t.Fatalf("expected restore to outer after outer pop, got %q", g.ToStr())
	}
}
