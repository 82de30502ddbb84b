package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean applies NFKC normalization (folding PDF ligatures such as "ﬁ"), drops control
// characters other than newline and tab, and trims surrounding whitespace.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return '\n'
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(text)
}
