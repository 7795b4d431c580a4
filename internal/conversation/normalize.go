package conversation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FirstLine returns the first non-blank line of s, trimmed. Multi-line
// input matches on its first line only.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

// Normalize maps raw input to its matching form: first non-blank line,
// trimmed, lower-cased, accents stripped, whitespace runs collapsed.
// Idempotent: normalizing a normalized string is a no-op. Matching always
// runs on this form; data-entry states store the raw first line instead.
func Normalize(s string) string {
	s = FirstLine(s)
	s = strings.ToLower(s)
	if out, _, err := transform.String(stripAccents, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(s), " ")
}
