// Package session owns the documents of one review session: it extracts, tags and
// normalizes uploads, clusters the batch on request, and answers queries over it.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/wakeru/internal/cluster"
	"github.com/hyperjump/wakeru/internal/config"
	"github.com/hyperjump/wakeru/internal/docid"
	"github.com/hyperjump/wakeru/internal/entity"
	"github.com/hyperjump/wakeru/internal/extract"
	"github.com/hyperjump/wakeru/internal/keyword"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/nlp"
	"github.com/hyperjump/wakeru/internal/storage"
	"github.com/hyperjump/wakeru/internal/tagger"
)

// DefaultWorkers bounds concurrent extraction and tagging within a batch.
const DefaultWorkers = 4

// ErrEmptyQuery is returned by Search for a blank query.
var ErrEmptyQuery = errors.New("empty search query")

// FileInput is one file to add. Path is read from disk; Filename is what the user sees.
// SourcePath is set for files picked up from a watched directory.
type FileInput struct {
	Filename   string
	Path       string
	SourcePath string
}

// Session holds the current batch. All operations are serialized.
type Session struct {
	mu        sync.Mutex
	extractor *extract.Extractor
	handles   *nlp.Handles
	store     storage.Store
	index     keyword.Index
	suggester *keyword.Suggester
	cluster   config.ClusterConfig
	workers   int
	logger    *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithWorkers sets the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClusterConfig sets clustering defaults.
func WithClusterConfig(c config.ClusterConfig) Option {
	return func(s *Session) { s.cluster = c }
}

// New creates a session. When index also implements keyword.TermDictionary, searches
// without hits come back with a spelling suggestion.
func New(extractor *extract.Extractor, handles *nlp.Handles, store storage.Store, index keyword.Index, opts ...Option) *Session {
	s := &Session{
		extractor: extractor,
		handles:   handles,
		store:     store,
		index:     index,
		cluster: config.ClusterConfig{
			MaxClusters:   cluster.DefaultMaxClusters,
			MaxIterations: cluster.DefaultMaxIterations,
		},
		workers: DefaultWorkers,
		logger:  zap.NewNop(),
	}
	if dict, ok := index.(keyword.TermDictionary); ok {
		s.suggester = keyword.NewSuggester(dict)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handles returns the model handles the session was built with.
func (s *Session) Handles() *nlp.Handles {
	return s.handles
}

type processed struct {
	text     string
	entities []models.NormalizedEntity
	counts   models.LabelCount
	err      error
}

// AddFiles extracts, tags and normalizes files and adds them to the session in the given
// order. A file that fails is reported in its outcome and the rest continue. When no tagger
// is available nothing is processed and the *nlp.ModelUnavailableError is returned.
func (s *Session) AddFiles(ctx context.Context, files []FileInput) (*models.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tg, modelID, err := s.handles.TaggerOrErr()
	if err != nil {
		s.logger.Error("batch halted", zap.Int("files", len(files)), zap.Error(err))
		return nil, err
	}
	result := &models.BatchResult{TaggerModel: modelID, Documents: make([]models.DocumentOutcome, len(files))}
	if len(files) == 0 {
		return result, nil
	}

	start := time.Now()
	out := make([]processed, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			out[i] = s.process(gctx, tg, f)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, f := range files {
		outcome := &result.Documents[i]
		outcome.Filename = displayName(f)
		if out[i].err != nil {
			outcome.Error = out[i].err.Error()
			result.Failed++
			s.logger.Warn("document failed", zap.String("file", outcome.Filename), zap.Error(out[i].err))
			continue
		}
		doc, err := s.addDocument(ctx, f, out[i])
		if err != nil {
			return nil, err
		}
		outcome.DocumentID = doc.ID
		outcome.EntityCount = len(doc.Entities)
		outcome.LabelCounts = out[i].counts
		result.Added++
	}

	if result.Added > 0 {
		if err := s.store.ClearClustering(ctx); err != nil {
			return nil, fmt.Errorf("failed to clear clusters: %w", err)
		}
	}
	s.logger.Info("batch processed",
		zap.String("tagger", modelID),
		zap.Int("added", result.Added),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

func (s *Session) process(ctx context.Context, tg tagger.Tagger, f FileInput) processed {
	text, err := s.extractor.Extract(f.Path)
	if err != nil {
		return processed{err: err}
	}
	mentions, err := tg.Tag(ctx, text)
	if err != nil {
		return processed{err: fmt.Errorf("tag %s: %w", displayName(f), err)}
	}
	entities, counts := entity.Normalize(mentions)
	s.logger.Debug("document tagged",
		zap.String("file", displayName(f)),
		zap.Int("mentions", len(mentions)),
		zap.Int("entities", len(entities)))
	return processed{text: text, entities: entities, counts: counts}
}

// addDocument stores one processed file. A watched file replaces its earlier version.
func (s *Session) addDocument(ctx context.Context, f FileInput, p processed) (*models.DocumentRecord, error) {
	id := docid.New()
	if f.SourcePath != "" {
		id = docid.ForPath(f.SourcePath)
		if err := s.removeBySource(ctx, f.SourcePath); err != nil {
			return nil, err
		}
	}
	doc := &models.DocumentRecord{
		ID:         id,
		Filename:   displayName(f),
		SourcePath: f.SourcePath,
		RawText:    p.text,
		Entities:   p.entities,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if err := s.index.Index(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to index document: %w", err)
	}
	return doc, nil
}

func displayName(f FileInput) string {
	if f.Filename != "" {
		return f.Filename
	}
	return filepath.Base(f.Path)
}

// Documents returns the session's documents in upload order.
func (s *Session) Documents(ctx context.Context) ([]*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ListDocuments(ctx)
}

// Document returns one document or an error wrapping storage.ErrNotFound.
func (s *Session) Document(ctx context.Context, id string) (*models.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.GetDocument(ctx, id)
}

// Remove drops one document. Earlier cluster assignments no longer describe the batch and are cleared.
func (s *Session) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from index: %w", err)
	}
	s.logger.Debug("document removed", zap.String("id", id))
	return s.store.ClearClustering(ctx)
}

// RemoveBySource drops every document that came from sourcePath.
func (s *Session) RemoveBySource(ctx context.Context, sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeBySource(ctx, sourcePath)
}

func (s *Session) removeBySource(ctx context.Context, sourcePath string) error {
	ids, err := s.store.DeleteBySource(ctx, sourcePath)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.index.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from index: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	s.logger.Debug("documents removed", zap.String("source", sourcePath), zap.Int("count", len(ids)))
	return s.store.ClearClustering(ctx)
}

// Reset empties the session.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Reset(ctx); err != nil {
		return err
	}
	if err := s.index.Reset(ctx); err != nil {
		return err
	}
	s.logger.Info("session reset")
	return nil
}

// LabelCounts returns label counts for one document, or for the whole session when docID is "".
func (s *Session) LabelCounts(ctx context.Context, docID string) (models.LabelCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.LabelCounts(ctx, docID)
}

// EntityRows returns the flattened (document, entity text, label) table.
func (s *Session) EntityRows(ctx context.Context) ([]models.EntityRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.EntityRows(ctx)
}

// Status summarizes the session and its models.
type Status struct {
	Documents int64             `json:"documents"`
	Models    []nlp.ModelStatus `json:"models"`
}

// Status reports document count and model availability.
func (s *Session) Status(ctx context.Context) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Documents: n, Models: s.handles.Status()}, nil
}
