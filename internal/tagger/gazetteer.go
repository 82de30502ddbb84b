package tagger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/wakeru/internal/models"
)

// Gazetteer tags exact, word-bounded occurrences of known terms. It is deterministic and
// needs no model files.
type Gazetteer struct {
	terms []term
}

type term struct {
	text  string
	label string
}

// gazetteerFile is the YAML layout: label -> list of terms.
//
//	terms:
//	  ORG: [Acme Corp, Globex]
//	  GPE: [Paris]
type gazetteerFile struct {
	Terms map[string][]string `yaml:"terms"`
}

// NewGazetteer builds a tagger from label -> terms. Empty terms are ignored.
func NewGazetteer(terms map[string][]string) *Gazetteer {
	g := &Gazetteer{}
	for label, list := range terms {
		for _, t := range list {
			if t = strings.TrimSpace(t); t != "" {
				g.terms = append(g.terms, term{text: t, label: label})
			}
		}
	}
	// Longest first so "New York City" wins over "New York"; ties by text then label.
	sort.Slice(g.terms, func(i, j int) bool {
		a, b := g.terms[i], g.terms[j]
		if len(a.text) != len(b.text) {
			return len(a.text) > len(b.text)
		}
		if a.text != b.text {
			return a.text < b.text
		}
		return a.label < b.label
	})
	return g
}

// LoadGazetteer reads a YAML terms file.
func LoadGazetteer(path string) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	var f gazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse gazetteer: %w", err)
	}
	if len(f.Terms) == 0 {
		return nil, fmt.Errorf("gazetteer %s has no terms", path)
	}
	return NewGazetteer(f.Terms), nil
}

type match struct {
	start, end int
	label      string
}

// Tag returns non-overlapping matches in text order. At one position the longest term wins.
func (g *Gazetteer) Tag(ctx context.Context, text string) ([]models.RawEntityMention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found []match
	for _, t := range g.terms {
		for from := 0; from < len(text); {
			i := strings.Index(text[from:], t.text)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(t.text)
			if wordBoundary(text, start, end) {
				found = append(found, match{start: start, end: end, label: t.label})
			}
			_, size := utf8.DecodeRuneInString(text[start:])
			from = start + size
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].end-found[i].start > found[j].end-found[j].start
	})
	mentions := make([]models.RawEntityMention, 0, len(found))
	covered := 0
	for _, m := range found {
		if m.start < covered {
			continue
		}
		mentions = append(mentions, models.RawEntityMention{Text: text[m.start:m.end], Label: m.label})
		covered = m.end
	}
	return mentions, nil
}

// Close is a no-op for Gazetteer.
func (g *Gazetteer) Close() error { return nil }

func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
