package session

import (
	"context"
	"strings"

	"github.com/hyperjump/wakeru/internal/keyword"
)

// DefaultSearchLimit caps search hits when no limit is given.
const DefaultSearchLimit = 10

// SnippetChars is the length of the text excerpt returned with each hit.
const SnippetChars = 200

// SearchHit is one matching document.
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet,omitempty"`
}

// SearchResult lists matching documents. Suggestion is set when nothing matched and a
// close spelling exists among the session's words.
type SearchResult struct {
	Query      string      `json:"query"`
	Hits       []SearchHit `json:"hits"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// Search finds session documents mentioning query in their name, text or entities.
func (s *Session) Search(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if opts == nil {
		opts = &keyword.SearchOptions{FilenameBoost: 2, EntityBoost: 1.5}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	results, err := s.index.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	out := &SearchResult{Query: query, Hits: make([]SearchHit, 0, len(results))}
	for _, r := range results {
		doc, err := s.store.GetDocument(ctx, r.ID)
		if err != nil {
			continue
		}
		out.Hits = append(out.Hits, SearchHit{
			DocumentID: r.ID,
			Filename:   doc.Filename,
			Score:      r.Score,
			Snippet:    keyword.Snippet(doc.RawText, query, SnippetChars),
		})
	}
	if len(out.Hits) == 0 && s.suggester != nil {
		if suggestion, ok, err := s.suggester.Suggest(query); err == nil && ok {
			out.Suggestion = suggestion
		}
	}
	return out, nil
}
