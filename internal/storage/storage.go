// Package storage holds the documents of the current session.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/wakeru/internal/models"
)

// ErrNotFound is returned when a document id is not in the session.
var ErrNotFound = errors.New("document not found")

// ClusterResult is the clustering outcome for one document.
type ClusterResult struct {
	DocumentID string
	Embedding  []float32
	ClusterID  int
}

// Store defines session document operations. Documents come back in upload order.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.DocumentRecord) error
	GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error)
	ListDocuments(ctx context.Context) ([]*models.DocumentRecord, error)
	DeleteDocument(ctx context.Context, id string) error
	DeleteBySource(ctx context.Context, sourcePath string) ([]string, error)
	Reset(ctx context.Context) error

	// SaveClustering stores embeddings and cluster ids for the whole batch at once.
	SaveClustering(ctx context.Context, results []ClusterResult) error
	// ClearClustering drops every embedding and cluster id.
	ClearClustering(ctx context.Context) error

	// LabelCounts counts entities per label for one document, or the whole session when docID is "".
	LabelCounts(ctx context.Context, docID string) (models.LabelCount, error)
	EntityRows(ctx context.Context) ([]models.EntityRow, error)
	CountDocuments(ctx context.Context) (int64, error)

	Close() error
}
