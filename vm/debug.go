package vm

import (
	"fmt"
	"sync"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/go-perl/plvm/opcodes"
)

// DebugLevel controls the verbosity of runtime diagnostics an Engine
// collects while executing, grounded on the teacher's vm.DebugLevel.
type DebugLevel int

const (
	DebugLevelNone DebugLevel = iota
	DebugLevelBasic
	DebugLevelDetailed
)

// DebugRecorder accumulates the bytecode-window trail spec §4.3's
// diagnostic contract names: for a RuntimeError or an uncaught die, the
// host can render the last few instructions leading up to the fault
// alongside their source positions.
type DebugRecorder struct {
	mu    sync.Mutex
	level DebugLevel
	trail []traceEntry
	limit int
}

type traceEntry struct {
	stamp string
	unit  string
	pc    int
	op    opcodes.Opcode
}

func NewDebugRecorder(level DebugLevel) *DebugRecorder {
	return &DebugRecorder{level: level, limit: 32}
}

func (d *DebugRecorder) SetLevel(level DebugLevel) {
	d.mu.Lock()
	d.level = level
	d.mu.Unlock()
}

func (d *DebugRecorder) Level() DebugLevel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.level
}

// Trace records one dispatched instruction when the recorder is at
// DebugLevelDetailed; it is a no-op otherwise so the hot dispatch loop
// pays no cost when debugging is off.
func (d *DebugRecorder) Trace(unitName string, pc int, op opcodes.Opcode) {
	if d.Level() != DebugLevelDetailed {
		return
	}
	d.mu.Lock()
	d.trail = append(d.trail, traceEntry{
		stamp: strftime.Format("%Y-%m-%d %H:%M:%S", time.Now()),
		unit:  unitName,
		pc:    pc,
		op:    op,
	})
	if len(d.trail) > d.limit {
		d.trail = d.trail[len(d.trail)-d.limit:]
	}
	d.mu.Unlock()
}

// Window renders the last n recorded instructions, most recent last,
// for inclusion in a fault diagnostic.
func (d *DebugRecorder) Window(n int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := len(d.trail) - n
	if start < 0 {
		start = 0
	}
	out := ""
	for _, e := range d.trail[start:] {
		out += fmt.Sprintf("[%s] %s:%d %s\n", e.stamp, e.unit, e.pc, e.op)
	}
	return out
}
