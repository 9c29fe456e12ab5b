// Package runtime holds the interpreter's Dynamic State (spec §3.6): the
// global symbol table, the dynamic-variable stack backing `local`, the
// call-frame stack `caller()` walks, and the `$@` error scalar. None of
// it is reachable from the compiler — only the vm package wires it in,
// keeping the compile/execute halves of spec §3 independent.
package runtime

import (
	"sync"

	"github.com/go-perl/plvm/values"
)

// Globals is the four-namespace symbol table every fully-qualified
// package variable resolves through. Each namespace autovivifies on
// first access, matching Perl's "package variables spring into
// existence on first mention" rule.
type Globals struct {
	mu    sync.Mutex
	globs map[string]*values.Glob
}

// NewGlobals returns an empty symbol table seeded with nothing; every
// name is created lazily.
func NewGlobals() *Globals {
	return &Globals{globs: make(map[string]*values.Glob)}
}

// globFor returns (creating if absent) the typeglob for a fully
// qualified name such as "main::x".
func (g *Globals) globFor(name string) *values.Glob {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.globLocked(name)
}

func (g *Globals) globLocked(name string) *values.Glob {
	if gl, ok := g.globs[name]; ok {
		return gl
	}
	gl := values.NewGlob(name)
	g.globs[name] = gl
	return gl
}

func (g *Globals) Scalar(name string) *values.Scalar {
	g.mu.Lock()
	defer g.mu.Unlock()
	gl := g.globLocked(name)
	if gl.Scalar == nil {
		gl.Scalar = values.NewUndef()
	}
	return gl.Scalar
}

func (g *Globals) SetScalar(name string, v *values.Scalar) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globLocked(name).Scalar = v
}

func (g *Globals) Array(name string) *values.Array {
	g.mu.Lock()
	defer g.mu.Unlock()
	gl := g.globLocked(name)
	if gl.Array == nil {
		gl.Array = values.NewArray()
	}
	return gl.Array
}

func (g *Globals) SetArray(name string, a *values.Array) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globLocked(name).Array = a
}

func (g *Globals) Hash(name string) *values.Hash {
	g.mu.Lock()
	defer g.mu.Unlock()
	gl := g.globLocked(name)
	if gl.Hash == nil {
		gl.Hash = values.NewHash()
	}
	return gl.Hash
}

func (g *Globals) SetHash(name string, h *values.Hash) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globLocked(name).Hash = h
}

func (g *Globals) Code(name string) *values.Code {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.globLocked(name).Code
}

func (g *Globals) SetCode(name string, c *values.Code) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globLocked(name).Code = c
}

func (g *Globals) Glob(name string) *values.Glob {
	return g.globFor(name)
}

// SetGlob installs src's slots that are non-nil onto name's glob (the
// `*dst = \&sub` style single-slot alias, and the full `*dst = *src`
// whole-glob alias when src carries more than one slot).
func (g *Globals) SetGlob(name string, src *values.Glob) {
	g.mu.Lock()
	defer g.mu.Unlock()
	dst := g.globLocked(name)
	if src.Scalar != nil {
		dst.Scalar = src.Scalar
	}
	if src.Array != nil {
		dst.Array = src.Array
	}
	if src.Hash != nil {
		dst.Hash = src.Hash
	}
	if src.Code != nil {
		dst.Code = src.Code
	}
}
