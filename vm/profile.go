package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/go-perl/plvm/opcodes"
)

// HotSpot is one (instruction-pointer, execution-count) sample, grounded
// on the teacher's vm.HotSpot profiling report shape.
type HotSpot struct {
	PC    int
	Op    opcodes.Opcode
	Count int
}

type profileState struct {
	mu sync.Mutex

	instructionCounts map[int]int
	opcodeAtPC        map[int]opcodes.Opcode
	opcodeCounts      map[opcodes.Opcode]int
	enabled           bool
}

func newProfileState() *profileState {
	return &profileState{
		instructionCounts: make(map[int]int),
		opcodeAtPC:        make(map[int]opcodes.Opcode),
		opcodeCounts:      make(map[opcodes.Opcode]int),
	}
}

func (ps *profileState) observe(pc int, op opcodes.Opcode) {
	if !ps.enabled {
		return
	}
	ps.mu.Lock()
	ps.instructionCounts[pc]++
	ps.opcodeAtPC[pc] = op
	ps.opcodeCounts[op]++
	ps.mu.Unlock()
}

func (ps *profileState) hotSpots(n int) []HotSpot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	spots := make([]HotSpot, 0, len(ps.instructionCounts))
	for pc, count := range ps.instructionCounts {
		spots = append(spots, HotSpot{PC: pc, Op: ps.opcodeAtPC[pc], Count: count})
	}
	sort.Slice(spots, func(i, j int) bool {
		if spots[i].Count == spots[j].Count {
			return spots[i].PC < spots[j].PC
		}
		return spots[i].Count > spots[j].Count
	})
	if n <= 0 || n >= len(spots) {
		return spots
	}
	return spots[:n]
}

// PerformanceReport renders a human-readable summary of everything this
// Engine has counted while profiling was on (counts are never reset), using
// go-humanize for the large instruction-count figures the teacher's
// plain fmt.Sprintf rendering never had to scale to.
func (e *Engine) PerformanceReport() string {
	ps := e.profile
	ps.mu.Lock()
	total := 0
	for _, c := range ps.instructionCounts {
		total += c
	}
	ps.mu.Unlock()

	if total == 0 {
		return "(no profiling data)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "instructions executed: %s (%d unique sites)\n",
		humanize.Comma(int64(total)), len(ps.instructionCounts))

	top := ps.hotSpots(5)
	fmt.Fprintf(&b, "top %d hot instructions:\n", len(top))
	for _, h := range top {
		fmt.Fprintf(&b, "  pc=%d %s x%s\n", h.PC, h.Op, humanize.Comma(int64(h.Count)))
	}
	return b.String()
}

// EnableProfiling turns on per-instruction counting; off by default
// since it adds a map write to every dispatched instruction.
func (e *Engine) EnableProfiling(on bool) { e.profile.enabled = on }
