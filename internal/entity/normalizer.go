// Package entity turns raw tagger output into deduplicated entity sets and label counts.
package entity

import (
	"sort"
	"strings"

	"github.com/hyperjump/wakeru/internal/models"
)

type key struct {
	text  string
	label string
}

// Normalize trims each mention and keeps the first occurrence of every (text, label)
// pair in original order. Counts are incremented on first occurrence only.
// Empty input yields an empty (non-nil) slice and map.
func Normalize(mentions []models.RawEntityMention) ([]models.NormalizedEntity, models.LabelCount) {
	seen := make(map[key]struct{}, len(mentions))
	entities := make([]models.NormalizedEntity, 0, len(mentions))
	counts := make(models.LabelCount)
	for _, m := range mentions {
		k := key{text: strings.TrimSpace(m.Text), label: m.Label}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		entities = append(entities, models.NormalizedEntity{Text: k.text, Label: k.label})
		counts[k.label]++
	}
	return entities, counts
}

// MergeCounts sums label counts, e.g. per-document counts into a session total.
func MergeCounts(counts ...models.LabelCount) models.LabelCount {
	out := make(models.LabelCount)
	for _, c := range counts {
		for label, n := range c {
			out[label] += n
		}
	}
	return out
}

// LabelTally is one label with its count, for ordered display.
type LabelTally struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Sorted returns the counts ordered by count descending, then label.
func Sorted(counts models.LabelCount) []LabelTally {
	out := make([]LabelTally, 0, len(counts))
	for label, n := range counts {
		out = append(out, LabelTally{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Label < out[j].Label
		}
		return out[i].Count > out[j].Count
	})
	return out
}
