// Package phone finds phone-number-like substrings in plain text.
//
// The match is a permissive heuristic: an optional leading '+', a digit, at
// least eight characters drawn from digits, spaces, parentheses and hyphens,
// and a trailing digit. Long numeric runs that are not phone numbers (order
// IDs, postal codes) match too; callers receive every candidate unmodified.
package phone

import "regexp"

// space is the Unicode whitespace set: RE2's ASCII \s plus vertical tab, the
// information separators, NEL, the line and paragraph separators and \p{Zs}.
const space = `\s\x0b\x1c-\x1f\x{85}\x{2028}\x{2029}\p{Zs}`

// pattern uses Unicode digit and space classes so that numbers written with
// non-breaking spaces or non-ASCII digits are still found.
var pattern = regexp.MustCompile(`\+?\p{Nd}[\p{Nd}` + space + `()-]{8,}\p{Nd}`)

// Extract returns every non-overlapping candidate in text, in order of
// appearance. It returns nil when nothing matches.
func Extract(text string) []string {
	return pattern.FindAllString(text, -1)
}
