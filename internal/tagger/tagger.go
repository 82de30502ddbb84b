// Package tagger finds named-entity mentions in document text.
package tagger

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/pkg/utils"
)

// DefaultMaxChars bounds the text handed to a tagger; the rest of the document is ignored.
const DefaultMaxChars = 1000000

// Tagger returns raw (span, label) mentions in text order. Overlaps and duplicates are
// allowed; deduplication happens downstream.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]models.RawEntityMention, error)
	Close() error
}

// Limited truncates input to a rune budget before delegating.
type Limited struct {
	Tagger
	MaxChars int
}

// Tag truncates text to MaxChars runes and tags the remainder.
func (l Limited) Tag(ctx context.Context, text string) ([]models.RawEntityMention, error) {
	max := l.MaxChars
	if max <= 0 {
		max = DefaultMaxChars
	}
	return l.Tagger.Tag(ctx, utils.TruncateRunes(text, max))
}

// Segment is a slice of the input starting at byte Offset.
type Segment struct {
	Text   string
	Offset int
}

// Split cuts text into segments of at most maxChars bytes, breaking after a newline or
// whitespace when one exists in the second half of the window so words stay whole.
// maxChars <= 0 returns the whole text as one segment.
func Split(text string, maxChars int) []Segment {
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []Segment{{Text: text, Offset: 0}}
	}
	var out []Segment
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			out = append(out, Segment{Text: text[start:], Offset: start})
			break
		}
		end = runeStart(text, end)
		cut := end
		window := text[start:end]
		if i := strings.LastIndexByte(window, '\n'); i >= len(window)/2 {
			cut = start + i + 1
		} else if i := lastSpaceEnd(window); i >= len(window)/2 {
			cut = start + i
		}
		if cut <= start {
			cut = end
		}
		if cut <= start {
			// maxChars smaller than one rune
			_, size := utf8.DecodeRuneInString(text[start:])
			cut = start + size
		}
		out = append(out, Segment{Text: text[start:cut], Offset: start})
		start = cut
	}
	return out
}

// lastSpaceEnd returns the byte index just past the last whitespace rune, or -1.
func lastSpaceEnd(s string) int {
	end := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			end = i + utf8.RuneLen(r)
		}
	}
	return end
}

// runeStart moves i back to the first byte of the rune containing it.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
