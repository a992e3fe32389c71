package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/qa"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const defaultMaxUploadBytes = 50 << 20

// backgroundIngestTimeout bounds an eager index build kicked off by upload.
const backgroundIngestTimeout = 10 * time.Minute

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.config.Upload.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !s.extensionAllowed(ext) {
		s.respondError(w, http.StatusUnprocessableEntity, "unsupported file type: "+ext)
		return
	}

	id := uuid.NewString()
	path, size, err := s.files.Save(id, ext, file)
	if err != nil {
		s.logger.Error("upload save failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	doc := &models.Document{
		ID:        id,
		Name:      header.Filename,
		Path:      path,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.storage.CreateDocument(r.Context(), doc); err != nil {
		s.logger.Error("upload metadata insert failed", zap.Error(err))
		_ = s.files.Remove(path)
		s.respondError(w, http.StatusInternalServerError, "failed to register document")
		return
	}
	s.logger.Info("document uploaded",
		zap.String("id", id),
		zap.String("name", header.Filename),
		zap.Int64("size", size),
	)

	if s.config.Upload.IngestOnUploadOrDefault() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), backgroundIngestTimeout)
			defer cancel()
			if err := s.service.Ingest(ctx, id); err != nil {
				s.logger.Warn("background ingestion failed",
					zap.String("id", id), zap.Error(err))
			}
		}()
	}

	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	var req models.QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentID == "" || strings.TrimSpace(req.Question) == "" {
		s.respondError(w, http.StatusBadRequest, "document_id and question are required")
		return
	}

	s.logger.Debug("question request",
		zap.String("document_id", req.DocumentID),
		zap.Int("question_chars", len(req.Question)),
	)
	ans, err := s.service.AnswerQuestion(r.Context(), req.DocumentID, req.Question)
	if err != nil {
		s.logger.Error("question failed",
			zap.String("document_id", req.DocumentID), zap.Error(err))
		s.respondError(w, questionStatus(err), qa.UserMessage(err))
		return
	}
	s.respondJSON(w, http.StatusOK, ans)
}

// questionStatus maps a question-answering failure to an HTTP status.
func questionStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, retrieval.ErrNoRelevantContent),
		errors.Is(err, answer.ErrEmptyAnswer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, answer.ErrRateLimited),
		// Restore failures rebuild in place, so the index sentinel only
		// surfaces when an index is loaded outside the cache.
		errors.Is(err, vector.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, answer.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.service.RemoveDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrDocumentNotFound) {
			s.respondError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	docCount, err := s.storage.CountDocuments(r.Context())
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"documents":      docCount,
		"indexes_cached": s.cache.Len(),
	}

	configInfo := map[string]interface{}{
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"chunk_size":           s.config.Retrieval.ChunkSize,
		"chunk_overlap":        s.config.Retrieval.ChunkOverlap,
		"top_k":                s.config.Retrieval.TopK,
		"answer_model":         s.config.Answer.Model,
		"database_path":        s.config.Storage.DatabasePath,
		"index_path":           s.config.Storage.IndexPath,
	}
	diskBytes, err := storage.DiskUsageBytes(
		s.config.Storage.DatabasePath,
		s.config.Storage.UploadPath,
		s.config.Storage.IndexPath,
	)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) extensionAllowed(ext string) bool {
	if len(s.config.Upload.AllowedExtensions) == 0 {
		return true
	}
	for _, allowed := range s.config.Upload.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
