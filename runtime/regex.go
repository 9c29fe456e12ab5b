package runtime

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-perl/plvm/values"
)

// RegexCache compiles and memoizes patterns by source+flags, grounded on
// the teacher's runtime/regex.go LRU pattern cache but trimmed to a
// plain map: this core has no PCRE-specific backtracking limits to
// track, just Go's RE2 engine underneath qr//.
type RegexCache struct {
	mu    sync.Mutex
	cache map[string]*values.RegexPayload
}

func NewRegexCache() *RegexCache { return &RegexCache{cache: make(map[string]*values.RegexPayload)} }

// Compile returns the cached RegexPayload for (pattern, flags),
// compiling and caching it on first use. flags may contain any of
// "i" (case-insensitive), "m" (multiline), "s" (dot matches newline),
// "x" (extended/whitespace-insensitive) — the subset Go's RE2 syntax
// supports via inline flags.
func (c *RegexCache) Compile(pattern, flags string) (*values.RegexPayload, error) {
	key := flags + "\x00" + pattern
	c.mu.Lock()
	if rx, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return rx, nil
	}
	c.mu.Unlock()

	translated := translatePattern(pattern, flags)
	re, err := regexp.Compile(translated)
	if err != nil {
		return nil, err
	}
	rx := &values.RegexPayload{Source: pattern, Flags: flags, Re: re}
	c.mu.Lock()
	c.cache[key] = rx
	c.mu.Unlock()
	return rx, nil
}

// translatePattern prepends Go RE2's inline-flag group for the flag
// letters it supports directly; "x" (extended whitespace) is applied by
// stripping unescaped whitespace and `#`-comments before compilation,
// since RE2 has no native equivalent.
func translatePattern(pattern, flags string) string {
	if strings.ContainsRune(flags, 'x') {
		pattern = stripExtendedWhitespace(pattern)
	}
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			inline.WriteRune(f)
		}
	}
	if inline.Len() == 0 {
		return pattern
	}
	return "(?" + inline.String() + ")" + pattern
}

func stripExtendedWhitespace(pattern string) string {
	var b strings.Builder
	inClass := false
	escaped := false
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case escaped:
			b.WriteByte(ch)
			escaped = false
		case ch == '\\':
			b.WriteByte(ch)
			escaped = true
		case ch == '[':
			inClass = true
			b.WriteByte(ch)
		case ch == ']':
			inClass = false
			b.WriteByte(ch)
		case !inClass && ch == '#':
			for i < len(pattern) && pattern[i] != '\n' {
				i++
			}
		case !inClass && (ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'):
			// dropped
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// MatchState is the per-Engine holder for `$&` and `$1`..`$N` from the
// most recent match, which Save/Restore snapshot around a nested match
// (spec §4.5). It does not record a match position (`pos($x)`).
type MatchState struct {
	groups  []string
	defined []bool
	whole   string
	ok      bool
}

func NewMatchState() *MatchState { return &MatchState{} }

func (m *MatchState) SetFromSubmatch(input string, loc []int) {
	if loc == nil {
		m.ok = false
		m.groups = nil
		m.defined = nil
		m.whole = ""
		return
	}
	m.ok = true
	m.whole = input[loc[0]:loc[1]]
	n := len(loc)/2 - 1
	m.groups = make([]string, n)
	m.defined = make([]bool, n)
	for i := 1; i <= n; i++ {
		lo, hi := loc[2*i], loc[2*i+1]
		if lo < 0 {
			continue
		}
		m.groups[i-1] = input[lo:hi]
		m.defined[i-1] = true
	}
}

// Group returns capture group n (1-based), or undef if it didn't
// participate in the match.
func (m *MatchState) Group(n int) *values.Scalar {
	if n < 1 || n > len(m.groups) || !m.defined[n-1] {
		return values.NewUndef()
	}
	return values.NewString(m.groups[n-1])
}

func (m *MatchState) Whole() *values.Scalar {
	if !m.ok {
		return values.NewUndef()
	}
	return values.NewString(m.whole)
}

// Save snapshots the current match state (for a nested match inside the
// replacement side of s///e or inside a match's own capture
// expression), returning a token to Restore.
func (m *MatchState) Save() MatchState { return *m }

func (m *MatchState) Restore(saved MatchState) { *m = saved }
