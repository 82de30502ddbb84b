// Package models defines core data structures for documents, entities, and clusters.
package models

import "time"

// RawEntityMention is one span emitted by an entity tagger. Mentions are not unique;
// overlapping and duplicate spans are expected.
type RawEntityMention struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// NormalizedEntity is a trimmed, deduplicated entity. Unique by (Text, Label) within one document.
type NormalizedEntity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// LabelCount maps an entity label to the number of distinct entities bearing it.
type LabelCount map[string]int

// DocumentRecord is a processed document in the current session.
// Embedding and ClusterID are only set after clustering runs.
type DocumentRecord struct {
	ID         string             `json:"id"`
	Seq        int64              `json:"seq"`
	Filename   string             `json:"filename"`
	SourcePath string             `json:"source_path,omitempty"`
	RawText    string             `json:"-"`
	Entities   []NormalizedEntity `json:"entities"`
	Embedding  []float32          `json:"-"`
	ClusterID  *int               `json:"cluster_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// LabelCounts derives the per-document label counts from the record's entities.
func (d *DocumentRecord) LabelCounts() LabelCount {
	counts := make(LabelCount)
	for _, e := range d.Entities {
		counts[e.Label]++
	}
	return counts
}

// EntityRow is one row of the flattened (document, entity text, label) export table.
type EntityRow struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"document"`
	Text       string `json:"text"`
	Label      string `json:"label"`
}
