package keyword

import (
	"strings"
	"unicode"
)

// Snippet returns about maxRunes runes of text around the first query term found in it,
// with "..." marking cut ends. Without a match it returns the start of text.
func Snippet(text, query string, maxRunes int) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if maxRunes <= 0 || len(runes) <= maxRunes {
		return string(runes)
	}
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	at := -1
	for _, term := range strings.Fields(query) {
		if i := indexRunes(lower, []rune(strings.ToLower(term))); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	start := 0
	if at > maxRunes/3 {
		start = at - maxRunes/3
	}
	end := start + maxRunes
	if end > len(runes) {
		end = len(runes)
		start = end - maxRunes
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(string(runes[start:end]))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j, r := range sub {
			if s[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
