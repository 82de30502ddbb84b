package tagger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/wakeru/internal/models"
)

// Token is one model token with its predicted tag and byte span in the source text.
type Token struct {
	Tag        string
	Start, End int
	Special    bool
}

// DecodeBIO groups BIO/IOB tagged tokens into entity spans over text.
// "B-X" opens an entity, "I-X" continues one of type X (or opens it), "O" closes.
// A word piece glued to the previous token (no gap, word characters on both sides) follows
// the previous token's decision whatever its own tag, so words are never split.
func DecodeBIO(text string, tokens []Token) []models.RawEntityMention {
	var (
		out        []models.RawEntityMention
		curLabel   string
		curStart   int
		curEnd     int
		open       bool
		prev       *Token
		prevInSpan bool
	)
	flush := func() {
		if open {
			if span := strings.TrimSpace(text[curStart:curEnd]); span != "" {
				out = append(out, models.RawEntityMention{Text: span, Label: curLabel})
			}
		}
		open = false
	}
	for i := range tokens {
		tok := &tokens[i]
		if tok.Special || tok.End <= tok.Start || tok.Start < 0 || tok.End > len(text) ||
			!utf8.RuneStart(text[tok.Start]) || (tok.End < len(text) && !utf8.RuneStart(text[tok.End])) {
			continue
		}
		if prev != nil && isWordPiece(text, prev, tok) {
			if prevInSpan {
				curEnd = tok.End
			}
			prev = tok
			continue
		}
		prefix, label := splitTag(tok.Tag)
		switch {
		case label == "":
			flush()
			prevInSpan = false
		case prefix == "I" && open && label == curLabel:
			curEnd = tok.End
			prevInSpan = true
		default:
			flush()
			curLabel, curStart, curEnd, open = label, tok.Start, tok.End, true
			prevInSpan = true
		}
		prev = tok
	}
	flush()
	return out
}

// splitTag returns ("B", "ORG") for "B-ORG" and ("", "") for "O". Tags without a prefix
// are treated as "I".
func splitTag(tag string) (prefix, label string) {
	if tag == "" || tag == "O" {
		return "", ""
	}
	if len(tag) > 2 && tag[1] == '-' {
		return tag[:1], tag[2:]
	}
	return "I", tag
}

func isWordPiece(text string, prev, tok *Token) bool {
	if tok.Start != prev.End || prev.End == 0 {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(text[:tok.Start])
	after, _ := utf8.DecodeRuneInString(text[tok.Start:])
	return isWordChar(before) && isWordChar(after)
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
