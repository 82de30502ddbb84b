package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/wakeru/internal/cluster"
	"github.com/hyperjump/wakeru/internal/entity"
	"github.com/hyperjump/wakeru/internal/export"
	"github.com/hyperjump/wakeru/internal/keyword"
	"github.com/hyperjump/wakeru/internal/models"
	"github.com/hyperjump/wakeru/internal/nlp"
	"github.com/hyperjump/wakeru/internal/session"
	"github.com/hyperjump/wakeru/internal/storage"
	"github.com/hyperjump/wakeru/pkg/utils"
)

// PreviewChars is the length of the text preview in document responses.
const PreviewChars = 500

const uploadField = "files"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	*session.Status
	Inbox []string `json:"inbox,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.Status(r.Context())
	if err != nil {
		s.respondFailure(w, "status", err)
		return
	}
	resp := statusResponse{Status: st}
	if s.inbox != nil {
		resp.Inbox = s.inbox.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		s.respondError(w, http.StatusBadRequest, `no files in form field "files"`)
		return
	}

	dir, err := os.MkdirTemp("", "wakeru-upload-*")
	if err != nil {
		s.respondFailure(w, "upload", err)
		return
	}
	defer os.RemoveAll(dir)

	inputs := make([]session.FileInput, 0, len(headers))
	for i, fh := range headers {
		path := filepath.Join(dir, strconv.Itoa(i)+strings.ToLower(filepath.Ext(fh.Filename)))
		if err := saveUpload(fh, path); err != nil {
			s.respondFailure(w, "upload", err)
			return
		}
		inputs = append(inputs, session.FileInput{Filename: filepath.Base(fh.Filename), Path: path})
	}
	s.logger.Debug("upload received", zap.Int("files", len(inputs)))

	res, err := s.session.AddFiles(r.Context(), inputs)
	if err != nil {
		s.respondFailure(w, "upload", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

type documentSummary struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	Filename    string    `json:"filename"`
	SourcePath  string    `json:"source_path,omitempty"`
	EntityCount int       `json:"entity_count"`
	ClusterID   *int      `json:"cluster_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.session.Documents(r.Context())
	if err != nil {
		s.respondFailure(w, "list documents", err)
		return
	}
	out := make([]documentSummary, len(docs))
	for i, d := range docs {
		out[i] = documentSummary{
			ID:          d.ID,
			Seq:         d.Seq,
			Filename:    d.Filename,
			SourcePath:  d.SourcePath,
			EntityCount: len(d.Entities),
			ClusterID:   d.ClusterID,
			CreatedAt:   d.CreatedAt,
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": out})
}

type documentResponse struct {
	*models.DocumentRecord
	Preview     string              `json:"preview"`
	LabelCounts []entity.LabelTally `json:"label_counts"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.session.Document(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, "get document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, documentResponse{
		DocumentRecord: doc,
		Preview:        utils.Truncate(doc.RawText, PreviewChars),
		LabelCounts:    entity.Sorted(doc.LabelCounts()),
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.Remove(r.Context(), id); err != nil {
		s.respondFailure(w, "delete document", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Reset(r.Context()); err != nil {
		s.respondFailure(w, "reset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	counts, err := s.session.LabelCounts(r.Context(), r.URL.Query().Get("document"))
	if err != nil {
		s.respondFailure(w, "label counts", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"labels": entity.Sorted(counts)})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.session.EntityRows(r.Context())
	if err != nil {
		s.respondFailure(w, "entities", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format != export.FormatJSON {
		w.Header().Set("Content-Disposition", `attachment; filename="`+format.Filename("entities")+`"`)
	}
	if err := export.WriteEntities(w, rows, format); err != nil {
		s.logger.Error("export failed", zap.String("format", string(format)), zap.Error(err))
	}
}

type clusterRequest struct {
	MaxClusters int `json:"max_clusters"`
}

func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.MaxClusters < 0 {
		s.respondError(w, http.StatusBadRequest, "max_clusters must not be negative")
		return
	}
	report, err := s.session.Cluster(r.Context(), req.MaxClusters)
	if err != nil {
		s.respondFailure(w, "cluster", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	opts := &keyword.SearchOptions{FilenameBoost: 2, EntityBoost: 1.5, Label: q.Get("label")}
	if q.Get("fuzzy") == "true" {
		opts.Fuzziness = 1
	}
	res, err := s.session.Search(r.Context(), q.Get("q"), limit, opts)
	if err != nil {
		s.respondFailure(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// respondFailure maps session errors to status codes.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	var unavailable *nlp.ModelUnavailableError
	switch {
	case errors.As(err, &unavailable):
		s.logger.Warn(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrEmptyQuery), errors.Is(err, cluster.ErrNoDocuments):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
