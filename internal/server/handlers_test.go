package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/config"
	"github.com/hyperjump/wakeru/internal/embedding"
	"github.com/hyperjump/wakeru/internal/extract"
	"github.com/hyperjump/wakeru/internal/keyword"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/nlp"
	"github.com/hyperjump/wakeru/internal/session"
	"github.com/hyperjump/wakeru/internal/storage"
	"github.com/hyperjump/wakeru/internal/tagger"
)

type mockInbox struct {
	dirs []string
}

func (m *mockInbox) Directories() []string {
	return append([]string(nil), m.dirs...)
}

var testTerms = map[string][]string{
	"ORG": {"Acme Corp"},
	"GPE": {"Paris", "Berlin"},
}

func newTestServer(t *testing.T, withTagger bool) http.Handler {
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
	h := &nlp.Handles{
		Embedder: &nlp.Loaded[embedding.Embedder]{Value: embedding.NewHashEmbedder(32), ModelID: "hash"},
	}
	if withTagger {
		h.Tagger = &nlp.Loaded[tagger.Tagger]{Value: tagger.NewGazetteer(testTerms), ModelID: "terms"}
	} else {
		h.TaggerErr = &nlp.ModelUnavailableError{Kind: nlp.KindTagger}
	}
	sess := session.New(extract.NewExtractor(nil), h, store, index)
	srv := NewServer(sess, &config.ServerConfig{Port: 8080, MaxUploadMB: 1}, &mockInbox{dirs: []string{"/srv/inbox"}}, zap.NewNop())
	return srv.Router()
}

type upload struct {
	name    string
	content string
}

func uploadRequest(t *testing.T, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(uploadField, f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte(f.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func do(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func seed(t *testing.T, h http.Handler) *models.BatchResult {
	t.Helper()
	w := do(h, uploadRequest(t,
		upload{"memo.txt", "Acme Corp met in Paris. Paris was sunny."},
		upload{"trip.txt", "Flights to Berlin for the Acme Corp team."},
	))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	var res models.BatchResult
	decode(t, w, &res)
	return &res
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, true)
	w := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
}

func TestHandleStatus(t *testing.T) {
	h := newTestServer(t, false)
	w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Documents int64             `json:"documents"`
		Models    []nlp.ModelStatus `json:"models"`
		Inbox     []string          `json:"inbox"`
	}
	decode(t, w, &out)
	if out.Documents != 0 || len(out.Models) != 2 {
		t.Errorf("status = %+v", out)
	}
	if len(out.Inbox) != 1 || out.Inbox[0] != "/srv/inbox" {
		t.Errorf("inbox = %v", out.Inbox)
	}
}

func TestHandleUpload(t *testing.T) {
	h := newTestServer(t, true)
	res := seed(t, h)
	if res.Added != 2 || res.Failed != 0 || res.TaggerModel != "terms" {
		t.Fatalf("result = %+v", res)
	}
	if res.Documents[0].Filename != "memo.txt" || res.Documents[1].Filename != "trip.txt" {
		t.Errorf("order = %+v", res.Documents)
	}
	if got := res.Documents[0].LabelCounts; got["ORG"] != 1 || got["GPE"] != 1 {
		t.Errorf("memo counts = %v", got)
	}
}

func TestHandleUpload_unsupportedFileReported(t *testing.T) {
	h := newTestServer(t, true)
	w := do(h, uploadRequest(t, upload{"notes.bin", "zzz"}, upload{"ok.txt", "Paris"}))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var res models.BatchResult
	decode(t, w, &res)
	if res.Added != 1 || res.Failed != 1 || res.Documents[0].Error == "" {
		t.Errorf("result = %+v", res)
	}
}

func TestHandleUpload_errors(t *testing.T) {
	h := newTestServer(t, false)
	if w := do(h, uploadRequest(t, upload{"a.txt", "Paris"})); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no tagger: got %d", w.Code)
	}

	h = newTestServer(t, true)
	if w := do(h, uploadRequest(t)); w.Code != http.StatusBadRequest {
		t.Errorf("no files: got %d", w.Code)
	}
	big := upload{"big.txt", strings.Repeat("x", 2<<20)}
	if w := do(h, uploadRequest(t, big)); w.Code != http.StatusBadRequest {
		t.Errorf("too large: got %d", w.Code)
	}
}

func TestHandleDocuments(t *testing.T) {
	h := newTestServer(t, true)
	res := seed(t, h)

	w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	var list struct {
		Documents []documentSummary `json:"documents"`
	}
	decode(t, w, &list)
	if len(list.Documents) != 2 || list.Documents[0].Filename != "memo.txt" || list.Documents[0].EntityCount != 2 {
		t.Fatalf("documents = %+v", list.Documents)
	}

	id := res.Documents[0].DocumentID
	w = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}
	var doc struct {
		ID          string `json:"id"`
		Preview     string `json:"preview"`
		LabelCounts []struct {
			Label string `json:"label"`
			Count int    `json:"count"`
		} `json:"label_counts"`
	}
	decode(t, w, &doc)
	if doc.ID != id || !strings.HasPrefix(doc.Preview, "Acme Corp met in Paris") || len(doc.LabelCounts) != 2 {
		t.Errorf("document = %+v", doc)
	}

	if w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing", nil)); w.Code != http.StatusNotFound {
		t.Errorf("missing: got %d", w.Code)
	}
	if w := do(h, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+id, nil)); w.Code != http.StatusOK {
		t.Errorf("delete: got %d", w.Code)
	}
	if w := do(h, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+id, nil)); w.Code != http.StatusNotFound {
		t.Errorf("delete again: got %d", w.Code)
	}
	if w := do(h, httptest.NewRequest(http.MethodDelete, "/api/v1/documents", nil)); w.Code != http.StatusOK {
		t.Errorf("reset: got %d", w.Code)
	}
	w = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	decode(t, w, &list)
	if len(list.Documents) != 0 {
		t.Errorf("after reset: %+v", list.Documents)
	}
}

func TestHandleLabels(t *testing.T) {
	h := newTestServer(t, true)
	res := seed(t, h)

	var out struct {
		Labels []struct {
			Label string `json:"label"`
			Count int    `json:"count"`
		} `json:"labels"`
	}
	decode(t, do(h, httptest.NewRequest(http.MethodGet, "/api/v1/labels", nil)), &out)
	if len(out.Labels) != 2 || out.Labels[0].Count != 2 || out.Labels[1].Count != 2 {
		t.Errorf("session labels = %+v", out.Labels)
	}

	url := "/api/v1/labels?document=" + res.Documents[1].DocumentID
	decode(t, do(h, httptest.NewRequest(http.MethodGet, url, nil)), &out)
	if len(out.Labels) != 2 || out.Labels[0].Label != "GPE" {
		t.Errorf("document labels = %+v", out.Labels)
	}
}

func TestHandleEntities(t *testing.T) {
	h := newTestServer(t, true)
	seed(t, h)

	w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/entities", nil))
	var rows []models.EntityRow
	decode(t, w, &rows)
	if len(rows) != 4 || rows[0].Filename != "memo.txt" {
		t.Errorf("rows = %+v", rows)
	}

	w = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/entities?format=csv", nil))
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("csv content type: %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "entities.csv") {
		t.Errorf("csv disposition: %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "document,entity,label\n") {
		t.Errorf("csv body: %q", w.Body.String())
	}

	w = do(h, httptest.NewRequest(http.MethodGet, "/api/v1/entities?format=xlsx", nil))
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := f.GetRows("Entities")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Errorf("xlsx rows = %d", len(got))
	}

	if w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/entities?format=pdf", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad format: got %d", w.Code)
	}
}

func TestHandleCluster(t *testing.T) {
	h := newTestServer(t, true)
	if w := do(h, httptest.NewRequest(http.MethodPost, "/api/v1/clusters", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("empty session: got %d", w.Code)
	}
	seed(t, h)

	body := strings.NewReader(`{"max_clusters": 2}`)
	w := do(h, httptest.NewRequest(http.MethodPost, "/api/v1/clusters", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var report models.ClusterReport
	decode(t, w, &report)
	if !report.Available || report.K != 2 || len(report.Assignments) != 2 || len(report.Points) != 2 {
		t.Errorf("report = %+v", report)
	}

	if w := do(h, httptest.NewRequest(http.MethodPost, "/api/v1/clusters", strings.NewReader("{"))); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: got %d", w.Code)
	}
	neg := strings.NewReader(`{"max_clusters": -1}`)
	if w := do(h, httptest.NewRequest(http.MethodPost, "/api/v1/clusters", neg)); w.Code != http.StatusBadRequest {
		t.Errorf("negative: got %d", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	h := newTestServer(t, true)
	res := seed(t, h)

	w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=berlin", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var out session.SearchResult
	decode(t, w, &out)
	if len(out.Hits) != 1 || out.Hits[0].DocumentID != res.Documents[1].DocumentID {
		t.Errorf("hits = %+v", out.Hits)
	}

	if w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("empty query: got %d", w.Code)
	}
	if w := do(h, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=paris&limit=x", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: got %d", w.Code)
	}
}
