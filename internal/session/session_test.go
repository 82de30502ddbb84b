package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/cluster"
	"github.com/hyperjump/wakeru/internal/embedding"
	"github.com/hyperjump/wakeru/internal/extract"
	"github.com/hyperjump/wakeru/internal/keyword"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/nlp"
	"github.com/hyperjump/wakeru/internal/storage"
	"github.com/hyperjump/wakeru/internal/tagger"
)

var testTerms = map[string][]string{
	"ORG": {"Acme Corp", "Globex"},
	"GPE": {"Paris", "Berlin"},
	"PER": {"Marie Curie"},
}

// poisonEmbedder fails for any text containing "poison".
type poisonEmbedder struct {
	embedding.Embedder
}

func (p poisonEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, errors.New("embedding service refused")
	}
	return p.Embedder.Embed(ctx, text)
}

// blankEmbedder returns an empty vector without error for any text containing "blank".
type blankEmbedder struct {
	embedding.Embedder
}

func (b blankEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "blank") {
		return []float32{}, nil
	}
	return b.Embedder.Embed(ctx, text)
}

// failingTagger fails for any text containing "explode".
type failingTagger struct {
	tagger.Tagger
}

func (f failingTagger) Tag(ctx context.Context, text string) ([]models.RawEntityMention, error) {
	if strings.Contains(text, "explode") {
		return nil, errors.New("tagger crashed")
	}
	return f.Tagger.Tag(ctx, text)
}

func testHandles(tg tagger.Tagger, emb embedding.Embedder) *nlp.Handles {
	h := &nlp.Handles{}
	if tg != nil {
		h.Tagger = &nlp.Loaded[tagger.Tagger]{Value: tg, ModelID: "terms"}
	} else {
		h.TaggerErr = &nlp.ModelUnavailableError{Kind: nlp.KindTagger}
	}
	if emb != nil {
		h.Embedder = &nlp.Loaded[embedding.Embedder]{Value: emb, ModelID: "hash"}
	} else {
		h.EmbedderErr = &nlp.ModelUnavailableError{Kind: nlp.KindEmbedder}
	}
	return h
}

func newTestSession(t *testing.T, h *nlp.Handles) *Session {
	t.Helper()
	store, err := storage.NewSQLiteStore(storage.MemoryDSN)
	if err != nil {
		t.Fatal(err)
	}
	index, err := keyword.NewMemIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = store.Close()
		_ = index.Close()
	})
	return New(extract.NewExtractor(nil), h, store, index, WithLogger(zap.NewNop()), WithWorkers(2))
}

func defaultSession(t *testing.T) *Session {
	return newTestSession(t, testHandles(tagger.NewGazetteer(testTerms), embedding.NewHashEmbedder(64)))
}

func writeFile(t *testing.T, dir, name, content string) FileInput {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return FileInput{Filename: name, Path: path}
}

func TestAddFiles_uploadOrderAndNormalization(t *testing.T) {
	s := defaultSession(t)
	dir := t.TempDir()
	ctx := context.Background()
	files := []FileInput{
		writeFile(t, dir, "c.txt", "Acme Corp opened in Paris. Paris again, and Acme Corp."),
		writeFile(t, dir, "a.txt", "Marie Curie lived in Paris."),
		writeFile(t, dir, "b.txt", "Nothing to see."),
	}

	res, err := s.AddFiles(ctx, files)
	if err != nil {
		t.Fatal(err)
	}
	if res.TaggerModel != "terms" || res.Added != 3 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	var names []string
	for _, d := range res.Documents {
		names = append(names, d.Filename)
	}
	if !reflect.DeepEqual(names, []string{"c.txt", "a.txt", "b.txt"}) {
		t.Errorf("outcome order = %v", names)
	}
	if !reflect.DeepEqual(res.Documents[0].LabelCounts, models.LabelCount{"ORG": 1, "GPE": 1}) {
		t.Errorf("c.txt counts = %v", res.Documents[0].LabelCounts)
	}

	docs, err := s.Documents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 || docs[0].Filename != "c.txt" || docs[2].Filename != "b.txt" {
		t.Fatalf("documents out of upload order")
	}
	want := []models.NormalizedEntity{{Text: "Acme Corp", Label: "ORG"}, {Text: "Paris", Label: "GPE"}}
	if !reflect.DeepEqual(docs[0].Entities, want) {
		t.Errorf("entities = %v, want %v", docs[0].Entities, want)
	}

	all, err := s.LabelCounts(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, models.LabelCount{"ORG": 1, "GPE": 2, "PER": 1}) {
		t.Errorf("session counts = %v", all)
	}

	rows, err := s.EntityRows(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[0].Filename != "c.txt" || rows[3].Text != "Paris" {
		t.Errorf("rows = %v", rows)
	}
}

func TestAddFiles_perFileErrors(t *testing.T) {
	s := newTestSession(t, testHandles(failingTagger{tagger.NewGazetteer(testTerms)}, embedding.NewHashEmbedder(16)))
	dir := t.TempDir()
	files := []FileInput{
		writeFile(t, dir, "good.txt", "Globex in Berlin"),
		{Filename: "missing.pdf", Path: filepath.Join(dir, "missing.pdf")},
		writeFile(t, dir, "image.png", "not text"),
		writeFile(t, dir, "bad.txt", "this will explode"),
		writeFile(t, dir, "also-good.txt", "Paris"),
	}

	res, err := s.AddFiles(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 2 || res.Failed != 3 {
		t.Fatalf("added=%d failed=%d", res.Added, res.Failed)
	}
	for i, wantErr := range []bool{false, true, true, true, false} {
		if got := res.Documents[i].Error != ""; got != wantErr {
			t.Errorf("document %d (%s) error = %q", i, res.Documents[i].Filename, res.Documents[i].Error)
		}
	}
	if !strings.Contains(res.Documents[1].Error, "missing.pdf") {
		t.Errorf("extraction error should name the file: %q", res.Documents[1].Error)
	}
	if res.Documents[0].DocumentID == "" || res.Documents[1].DocumentID != "" {
		t.Error("only stored documents get an id")
	}
}

func TestAddFiles_taggerUnavailable(t *testing.T) {
	s := newTestSession(t, testHandles(nil, embedding.NewHashEmbedder(16)))
	dir := t.TempDir()
	_, err := s.AddFiles(context.Background(), []FileInput{writeFile(t, dir, "a.txt", "Paris")})
	var mu *nlp.ModelUnavailableError
	if !errors.As(err, &mu) || mu.Kind != nlp.KindTagger {
		t.Fatalf("err = %v", err)
	}
	st, err := s.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 0 {
		t.Error("nothing should be stored when the tagger is unavailable")
	}
}

func TestAddFiles_empty(t *testing.T) {
	s := defaultSession(t)
	res, err := s.AddFiles(context.Background(), nil)
	if err != nil || res.Added != 0 || len(res.Documents) != 0 {
		t.Errorf("res=%+v err=%v", res, err)
	}
}

func TestAddFiles_cancelled(t *testing.T) {
	s := defaultSession(t)
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AddFiles(ctx, []FileInput{writeFile(t, dir, "a.txt", "Paris")}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestAddFiles_sourceReplacesEarlierVersion(t *testing.T) {
	s := defaultSession(t)
	dir := t.TempDir()
	ctx := context.Background()
	f := writeFile(t, dir, "watched.txt", "Paris")
	f.SourcePath = f.Path
	if _, err := s.AddFiles(ctx, []FileInput{f}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.Path, []byte("Berlin"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddFiles(ctx, []FileInput{f}); err != nil {
		t.Fatal(err)
	}
	docs, _ := s.Documents(ctx)
	if len(docs) != 1 || docs[0].Entities[0].Text != "Berlin" {
		t.Fatalf("docs = %+v", docs)
	}

	if err := s.RemoveBySource(ctx, f.Path); err != nil {
		t.Fatal(err)
	}
	if docs, _ := s.Documents(ctx); len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestCluster(t *testing.T) {
	s := defaultSession(t)
	dir := t.TempDir()
	ctx := context.Background()
	_, err := s.AddFiles(ctx, []FileInput{
		writeFile(t, dir, "1.txt", "apples oranges bananas fruit market"),
		writeFile(t, dir, "2.txt", "apples oranges fruit salad market"),
		writeFile(t, dir, "3.txt", "database index query planner"),
		writeFile(t, dir, "4.txt", "database query optimizer index"),
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := s.Cluster(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Available || report.K != 2 || report.EmbeddingModel != "hash" || report.Seed != cluster.DefaultSeed {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Assignments) != 4 || len(report.Points) != 4 {
		t.Fatalf("assignments=%d points=%d", len(report.Assignments), len(report.Points))
	}
	for _, a := range report.Assignments {
		if a.ClusterID < 0 || a.ClusterID >= 2 {
			t.Errorf("cluster id %d out of range", a.ClusterID)
		}
	}

	docs, _ := s.Documents(ctx)
	for _, d := range docs {
		if d.ClusterID == nil || d.Embedding == nil {
			t.Errorf("document %s should carry its cluster", d.Filename)
		}
	}

	again, err := s.Cluster(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(again.Assignments, report.Assignments) {
		t.Error("clustering should be reproducible")
	}

	if _, err := s.AddFiles(ctx, []FileInput{writeFile(t, dir, "5.txt", "more fruit")}); err != nil {
		t.Fatal(err)
	}
	docs, _ = s.Documents(ctx)
	for _, d := range docs {
		if d.ClusterID != nil {
			t.Errorf("adding documents should clear cluster ids, %s has %d", d.Filename, *d.ClusterID)
		}
	}
}

func TestCluster_singleDocument(t *testing.T) {
	s := defaultSession(t)
	ctx := context.Background()
	if _, err := s.AddFiles(ctx, []FileInput{writeFile(t, t.TempDir(), "only.txt", "Paris")}); err != nil {
		t.Fatal(err)
	}
	report, err := s.Cluster(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Available || report.K != 1 || report.Assignments[0].ClusterID != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Points) != 0 {
		t.Error("a single document is never projected")
	}
}

func TestCluster_missingEmbedding(t *testing.T) {
	s := newTestSession(t, testHandles(tagger.NewGazetteer(testTerms), poisonEmbedder{embedding.NewHashEmbedder(16)}))
	dir := t.TempDir()
	ctx := context.Background()
	_, err := s.AddFiles(ctx, []FileInput{
		writeFile(t, dir, "a.txt", "fine text"),
		writeFile(t, dir, "b.txt", "poison pill"),
		writeFile(t, dir, "c.txt", "more fine text"),
	})
	if err != nil {
		t.Fatal(err)
	}
	report, err := s.Cluster(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Available || len(report.Assignments) != 0 || len(report.Points) != 0 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Reason, "b.txt") {
		t.Errorf("reason should name the document: %q", report.Reason)
	}
	docs, _ := s.Documents(ctx)
	for _, d := range docs {
		if d.ClusterID != nil {
			t.Errorf("%s should have no cluster", d.Filename)
		}
	}
}

func TestCluster_emptyEmbedding(t *testing.T) {
	s := newTestSession(t, testHandles(tagger.NewGazetteer(testTerms), blankEmbedder{embedding.NewHashEmbedder(16)}))
	dir := t.TempDir()
	ctx := context.Background()
	_, err := s.AddFiles(ctx, []FileInput{
		writeFile(t, dir, "a.txt", "fine text"),
		writeFile(t, dir, "b.txt", "blank page"),
	})
	if err != nil {
		t.Fatal(err)
	}
	report, err := s.Cluster(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Available {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Reason, "missing: b.txt") {
		t.Errorf("reason should name the document: %q", report.Reason)
	}
}

func TestCluster_errors(t *testing.T) {
	s := defaultSession(t)
	ctx := context.Background()
	if _, err := s.Cluster(ctx, 0); !errors.Is(err, cluster.ErrNoDocuments) {
		t.Errorf("empty session: err = %v", err)
	}

	s = newTestSession(t, testHandles(tagger.NewGazetteer(testTerms), nil))
	if _, err := s.AddFiles(ctx, []FileInput{writeFile(t, t.TempDir(), "a.txt", "Paris")}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Cluster(ctx, 0)
	var mu *nlp.ModelUnavailableError
	if !errors.As(err, &mu) || mu.Kind != nlp.KindEmbedder {
		t.Errorf("err = %v", err)
	}
}

func TestRemoveAndReset(t *testing.T) {
	s := defaultSession(t)
	dir := t.TempDir()
	ctx := context.Background()
	res, err := s.AddFiles(ctx, []FileInput{
		writeFile(t, dir, "a.txt", "Paris"),
		writeFile(t, dir, "b.txt", "Berlin"),
	})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Documents[0].DocumentID

	if err := s.Remove(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Document(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := s.Remove(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second remove: err = %v", err)
	}
	if hits, _ := s.Search(ctx, "paris", 0, nil); len(hits.Hits) != 0 {
		t.Error("removed document should not be searchable")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	st, _ := s.Status(ctx)
	if st.Documents != 0 || len(st.Models) != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestSearch(t *testing.T) {
	s := defaultSession(t)
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := s.AddFiles(ctx, []FileInput{
		writeFile(t, dir, "treaty.txt", "The Geneva treaty was signed by Acme Corp."),
		writeFile(t, dir, "menu.txt", "Lunch menu."),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := s.Search(ctx, "geneva", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Filename != "treaty.txt" || res.Suggestion != "" {
		t.Errorf("res = %+v", res)
	}
	if len(res.Hits) == 1 && !strings.Contains(res.Hits[0].Snippet, "Geneva treaty") {
		t.Errorf("snippet = %q", res.Hits[0].Snippet)
	}

	res, err = s.Search(ctx, "genva", 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 0 || res.Suggestion != "geneva" {
		t.Errorf("res = %+v", res)
	}

	if _, err := s.Search(ctx, "  ", 5, nil); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v", err)
	}
}
