package runtime

import (
	"strconv"
	"strings"

	"github.com/go-perl/plvm/values"
)

// Match implements the `=~ //` primitive (spec §4.4). In scalar context
// it returns a single true/false scalar; in list context, with capture
// groups present, it returns the captured substrings (empty list on no
// match); with no capture groups it falls back to a single 1/empty-list
// result. global requests `//g` repeated-match semantics starting at
// start (byte offset into subject), returning the next match's end
// offset alongside the result so the caller can track `pos()`.
func (c *RegexCache) Match(state *MatchState, subject, pattern, flags string, listCtx bool, global bool, start int) (result []*values.Scalar, nextPos int, matched bool, err error) {
	rx, err := c.Compile(pattern, flags)
	if err != nil {
		return nil, start, false, err
	}
	if start > len(subject) {
		state.SetFromSubmatch(subject, nil)
		return nil, start, false, nil
	}
	loc := rx.Re.FindStringSubmatchIndex(subject[start:])
	if loc == nil {
		state.SetFromSubmatch(subject, nil)
		return nil, start, false, nil
	}
	for i := range loc {
		if loc[i] >= 0 {
			loc[i] += start
		}
	}
	state.SetFromSubmatch(subject, loc)
	nGroups := len(loc)/2 - 1

	next := loc[1]
	if global && loc[0] == loc[1] {
		next++ // avoid an infinite loop on a zero-width //g match
	}

	if !listCtx {
		return []*values.Scalar{values.NewBool(true)}, next, true, nil
	}
	if nGroups == 0 {
		return []*values.Scalar{values.NewBool(true)}, next, true, nil
	}
	out := make([]*values.Scalar, nGroups)
	for i := 1; i <= nGroups; i++ {
		out[i-1] = state.Group(i)
	}
	return out, next, true, nil
}

// Subst implements `s///` (spec §4.4). replacement is already
// interpolated per-match by the caller via replaceFn (needed because
// `$1` inside the replacement text refers to that match's own
// captures, and `s///e` evaluates the replacement as code); Subst
// itself only drives the global/once iteration and position tracking.
// It returns the substituted string and the replacement count.
func (c *RegexCache) Subst(state *MatchState, subject, pattern, flags string, global bool, replaceFn func(whole string) string) (string, int, error) {
	rx, err := c.Compile(pattern, flags)
	if err != nil {
		return subject, 0, err
	}
	var b strings.Builder
	count := 0
	pos := 0
	for pos <= len(subject) {
		loc := rx.Re.FindStringSubmatchIndex(subject[pos:])
		if loc == nil {
			break
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += pos
			}
		}
		state.SetFromSubmatch(subject, loc)
		b.WriteString(subject[pos:loc[0]])
		b.WriteString(replaceFn(subject[loc[0]:loc[1]]))
		count++
		next := loc[1]
		if loc[0] == loc[1] {
			if next < len(subject) {
				b.WriteByte(subject[next])
			}
			next++
		}
		pos = next
		if !global {
			break
		}
	}
	if pos <= len(subject) {
		b.WriteString(subject[pos:])
	}
	return b.String(), count, nil
}

// Split implements `split /pattern/, string, limit` (spec §4.4's
// delegate). limit<=0 means unbounded, matching Perl's default.
func (c *RegexCache) Split(subject, pattern, flags string, limit int) ([]*values.Scalar, error) {
	if pattern == " " && flags == "" {
		// The magic `split ' '` form: split on runs of whitespace,
		// discarding leading empties.
		fields := strings.Fields(subject)
		out := make([]*values.Scalar, len(fields))
		for i, f := range fields {
			out[i] = values.NewString(f)
		}
		return out, nil
	}
	rx, err := c.Compile(pattern, flags)
	if err != nil {
		return nil, err
	}
	var parts []string
	if limit > 0 {
		parts = rx.Re.Split(subject, limit)
	} else {
		parts = rx.Re.Split(subject, -1)
		for len(parts) > 0 && parts[len(parts)-1] == "" {
			parts = parts[:len(parts)-1]
		}
	}
	out := make([]*values.Scalar, len(parts))
	for i, p := range parts {
		out[i] = values.NewString(p)
	}
	return out, nil
}

// InterpolateCaptures expands `$1`..`$9`/`$&`/`${N}` references inside a
// substitution replacement string using the current match state —
// the non-`/e` replacement path of `s///`.
func InterpolateCaptures(state *MatchState, repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		ch := repl[i]
		if ch != '$' || i+1 >= len(repl) {
			b.WriteByte(ch)
			continue
		}
		if repl[i+1] == '&' {
			b.WriteString(state.Whole().ToStr())
			i++
			continue
		}
		j := i + 1
		braced := false
		if repl[j] == '{' {
			braced = true
			j++
		}
		start := j
		for j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
			j++
		}
		if j == start {
			b.WriteByte(ch)
			continue
		}
		n, _ := strconv.Atoi(repl[start:j])
		b.WriteString(state.Group(n).ToStr())
		if braced && j < len(repl) && repl[j] == '}' {
			j++
		}
		i = j - 1
	}
	return b.String()
}
