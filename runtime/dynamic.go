package runtime

import "github.com/go-perl/plvm/values"

// localSave is one `local`-saved payload: the persistent global cell
// that was overwritten, and the payload it held before the override.
type localSave struct {
	cell     *values.Scalar
	snapshot values.Cell
}

// DynamicStack backs `local`: a single growable save-stack shared by
// the whole call chain (spec §4.5). SaveLevel/PopToLevel bracket a sub
// call so every `local` made during that call — however
// deep, however it exits (normal return, die, last-through-a-closure)
// — unwinds when the call's frame is torn down.
type DynamicStack struct {
	entries []localSave
}

func NewDynamicStack() *DynamicStack { return &DynamicStack{} }

// PushLocal snapshots target's current payload before the caller
// overwrites it with a `local`-scoped value.
func (d *DynamicStack) PushLocal(target *values.Scalar) {
	d.entries = append(d.entries, localSave{cell: target, snapshot: target.PayloadSnapshot()})
}

// SaveLevel returns the current stack depth, to be passed back to
// PopToLevel when the bracketing call frame unwinds.
func (d *DynamicStack) SaveLevel() int { return len(d.entries) }

// PopToLevel restores every local saved since level, in reverse order.
func (d *DynamicStack) PopToLevel(level int) {
	for i := len(d.entries) - 1; i >= level; i-- {
		d.entries[i].cell.SetPayload(d.entries[i].snapshot)
	}
	d.entries = d.entries[:level]
}
