package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const defaultMaxLen = 80

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Make turns free text into a lowercase [a-z0-9-] slug with diacritics
// removed. Empty results fall back to "post".
func Make(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.ToLower(strings.TrimSpace(s))) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.Trim(nonAlnum.ReplaceAllString(b.String(), "-"), "-")
	if len(out) > maxLen {
		out = strings.Trim(out[:maxLen], "-")
	}
	if out == "" {
		return "post"
	}
	return out
}

// WithSuffix appends a suffix, trimming the base so the result fits maxLen.
func WithSuffix(base, suffix string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	room := maxLen - len(suffix) - 1
	if room < 1 {
		room = 1
	}
	if len(base) > room {
		base = strings.Trim(base[:room], "-")
	}
	return base + "-" + suffix
}
