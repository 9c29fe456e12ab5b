package values

import "regexp"

// RegexPayload is the compiled-pattern payload behind a PayloadRegex
// scalar (spec §4.4: "compile pattern+flags to a regex-object scalar").
// The pattern is translated to Go's RE2 syntax by the runtime library
// before compilation; this struct just carries the result alongside
// the original source for stringification and re-flagging (`qr//` can
// be embedded in another pattern, which needs Source/Flags, not Re).
type RegexPayload struct {
	Source string
	Flags  string
	Re     *regexp.Regexp
}
