package models

// ClusterAssignment relates a document to its cluster id.
type ClusterAssignment struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ClusterID  int    `json:"cluster_id"`
}

// Point is a 2D projection coordinate used only for plotting.
type Point struct {
	DocumentID string  `json:"document_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// ClusterReport is the outcome of clustering the current batch.
// When Available is false, Reason explains why and no assignments are present.
type ClusterReport struct {
	Available      bool                `json:"available"`
	Reason         string              `json:"reason,omitempty"`
	K              int                 `json:"k"`
	Seed           int64               `json:"seed"`
	EmbeddingModel string              `json:"embedding_model,omitempty"`
	Assignments    []ClusterAssignment `json:"assignments,omitempty"`
	Points         []Point             `json:"points,omitempty"`
}

// DocumentOutcome reports how one uploaded file fared in a batch.
type DocumentOutcome struct {
	Filename    string     `json:"filename"`
	DocumentID  string     `json:"document_id,omitempty"`
	EntityCount int        `json:"entity_count"`
	LabelCounts LabelCount `json:"label_counts,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// BatchResult is the result of adding a batch of files, in upload order.
type BatchResult struct {
	TaggerModel string            `json:"tagger_model"`
	Documents   []DocumentOutcome `json:"documents"`
	Added       int               `json:"added"`
	Failed      int               `json:"failed"`
}
