package keyword

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/wakeru/internal/models"
)

// Indexed field names.
const (
	FieldFilename = "filename"
	FieldText     = "text"
	FieldEntities = "entities"
	FieldLabels   = "labels"
)

var textFields = []string{FieldFilename, FieldText, FieldEntities}

// BleveIndex implements Index with an in-memory Bleve index.
type BleveIndex struct {
	mu      sync.RWMutex
	mapping mapping.IndexMapping
	index   bleve.Index
}

// NewMemIndex creates an empty in-memory index. Nothing is written to disk.
func NewMemIndex() (*BleveIndex, error) {
	im := newMapping()
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{mapping: im, index: index}, nil
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer lowercases without stemming, so names match as typed.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	for _, f := range textFields {
		docMapping.AddFieldMappingsAt(f, textFieldMapping)
	}
	labelMapping := bleve.NewKeywordFieldMapping()
	labelMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(FieldLabels, labelMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// Index adds or replaces a document.
func (b *BleveIndex) Index(ctx context.Context, doc *models.DocumentRecord) error {
	entities := make([]string, 0, len(doc.Entities))
	labels := make([]string, 0, len(doc.Entities))
	seen := make(map[string]struct{})
	for _, e := range doc.Entities {
		entities = append(entities, e.Text)
		if _, ok := seen[e.Label]; !ok {
			seen[e.Label] = struct{}{}
			labels = append(labels, e.Label)
		}
	}
	fields := map[string]interface{}{
		FieldFilename: filenameText(doc.Filename),
		FieldText:     doc.RawText,
		FieldEntities: entities,
		FieldLabels:   labels,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.index.Index(doc.ID, fields); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.ID, err)
	}
	return nil
}

// Search returns up to limit hits ordered by score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequest(buildQuery(query, opts))
	req.Size = limit

	b.mu.RLock()
	defer b.mu.RUnlock()
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// filenameText splits a file name on separators the tokenizer would keep inside a word.
func filenameText(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-':
			return ' '
		}
		return r
	}, name)
}

// buildQuery matches every text field, each with its own boost, optionally restricted to a label.
func buildQuery(query string, opts *SearchOptions) blevequery.Query {
	if opts == nil {
		opts = &SearchOptions{}
	}
	fuzziness := opts.Fuzziness
	if fuzziness > 2 {
		fuzziness = 2
	}
	boosts := map[string]float64{FieldFilename: opts.FilenameBoost, FieldEntities: opts.EntityBoost}

	queries := make([]blevequery.Query, 0, len(textFields))
	for _, field := range textFields {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		if fuzziness > 0 {
			mq.SetFuzziness(fuzziness)
		}
		if boost := boosts[field]; boost > 1 {
			mq.SetBoost(boost)
		}
		queries = append(queries, mq)
	}
	match := bleve.NewDisjunctionQuery(queries...)
	if opts.Label == "" {
		return match
	}
	label := bleve.NewTermQuery(opts.Label)
	label.SetField(FieldLabels)
	return bleve.NewConjunctionQuery(match, label)
}

// Delete removes a document. Unknown ids are ignored.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Delete(id)
}

// Reset drops every document by replacing the index.
func (b *BleveIndex) Reset(ctx context.Context) error {
	index, err := bleve.NewMemOnly(b.mapping)
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	b.mu.Lock()
	old := b.index
	b.index = index
	b.mu.Unlock()
	return old.Close()
}

// DocCount returns the number of indexed documents.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.DocCount()
}

// Terms returns every indexed term with the number of documents containing it.
func (b *BleveIndex) Terms() (map[string]int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	terms := make(map[string]int)
	for _, field := range textFields {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if int(entry.Count) > terms[entry.Term] {
				terms[entry.Term] = int(entry.Count)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}
