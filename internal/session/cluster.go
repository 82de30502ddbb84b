package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/cluster"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/storage"
)

// Cluster embeds every document, partitions the batch into at most maxClusters groups
// (the configured default when maxClusters <= 0) and projects it to 2D.
//
// When no embedder is available the *nlp.ModelUnavailableError is returned. When any
// document cannot be embedded the report is unavailable and no ids are stored.
func (s *Session) Cluster(ctx context.Context, maxClusters int) (*models.ClusterReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, cluster.ErrNoDocuments
	}
	embedder, modelID, err := s.handles.EmbedderOrErr()
	if err != nil {
		s.logger.Error("clustering halted", zap.Error(err))
		return nil, err
	}
	if maxClusters <= 0 {
		maxClusters = s.cluster.MaxClusters
	}
	report := &models.ClusterReport{Seed: s.cluster.SeedOrDefault(), EmbeddingModel: modelID}

	embeddings := make([][]float32, len(docs))
	var missing []string
	for i, d := range docs {
		vec, err := embedder.Embed(ctx, d.RawText)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("embedding failed", zap.String("file", d.Filename), zap.Error(err))
			missing = append(missing, d.Filename)
			continue
		}
		if len(vec) == 0 {
			s.logger.Warn("embedding empty", zap.String("file", d.Filename))
			missing = append(missing, d.Filename)
			continue
		}
		embeddings[i] = vec
	}

	ids, k, err := cluster.Assign(embeddings, cluster.Options{
		MaxClusters:   maxClusters,
		Seed:          s.cluster.SeedOrDefault(),
		MaxIterations: s.cluster.MaxIterations,
	})
	if errors.Is(err, cluster.ErrEmbeddingIncomplete) {
		if clearErr := s.store.ClearClustering(ctx); clearErr != nil {
			return nil, clearErr
		}
		report.Reason = fmt.Sprintf("%v (missing: %s)", cluster.ErrEmbeddingIncomplete, strings.Join(missing, ", "))
		s.logger.Warn("clustering skipped", zap.Strings("missing", missing))
		return report, nil
	}
	if err != nil {
		return nil, err
	}

	results := make([]storage.ClusterResult, len(docs))
	report.Assignments = make([]models.ClusterAssignment, len(docs))
	for i, d := range docs {
		results[i] = storage.ClusterResult{DocumentID: d.ID, Embedding: embeddings[i], ClusterID: ids[i]}
		report.Assignments[i] = models.ClusterAssignment{DocumentID: d.ID, Filename: d.Filename, ClusterID: ids[i]}
	}

	if len(docs) > 1 {
		coords, err := cluster.Project2D(embeddings)
		if err != nil {
			return nil, fmt.Errorf("failed to project embeddings: %w", err)
		}
		report.Points = make([]models.Point, len(docs))
		for i, d := range docs {
			report.Points[i] = models.Point{DocumentID: d.ID, X: coords[i][0], Y: coords[i][1]}
		}
	}

	if err := s.store.SaveClustering(ctx, results); err != nil {
		return nil, fmt.Errorf("failed to store clusters: %w", err)
	}
	report.Available = true
	report.K = k
	s.logger.Info("batch clustered",
		zap.String("embedder", modelID),
		zap.Int("documents", len(docs)),
		zap.Int("k", k))
	return report, nil
}
