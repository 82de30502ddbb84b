// Package keyword provides full-text lookup over the documents of the current session.
package keyword

import (
	"context"

	"github.com/hyperjump/wakeru/internal/models"
)

// SearchOptions tunes a search. Nil means a plain match over every field.
type SearchOptions struct {
	// FilenameBoost multiplies matches in the filename (e.g. 3.0). Values <= 1 disable it.
	FilenameBoost float64
	// EntityBoost multiplies matches in extracted entity texts.
	EntityBoost float64
	// Fuzziness is the maximum edit distance per term (0 disables fuzzy matching, at most 2).
	Fuzziness int
	// Label keeps only documents with at least one entity of this label.
	Label string
}

// Index defines session search operations.
type Index interface {
	Index(ctx context.Context, doc *models.DocumentRecord) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	Reset(ctx context.Context) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single search hit.
type Result struct {
	ID    string  `json:"document_id"`
	Score float64 `json:"score"`
}

// TermDictionary exposes indexed terms with their document frequency.
type TermDictionary interface {
	Terms() (map[string]int, error)
}
