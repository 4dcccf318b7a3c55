package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/models"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 32 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":          "kura",
		"status":           "running",
		"version":          s.info.Version,
		"mock":             s.info.Mock,
		"embedding_model":  s.info.EmbeddingModel,
		"generation_model": s.info.GenerationModel,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, chi.URLParam(r, "name"))
}

func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	s.upload(w, r, "")
}

// upload ingests the multipart "file" field. An empty name is taken from the
// "db_name" form field, defaulting to "default".
func (s *Server) upload(w http.ResponseWriter, r *http.Request, name string) {
	maxBytes := int64(s.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, apperr.Validation("upload", name, "upload exceeds %d MB", s.config.MaxUploadMB))
			return
		}
		s.respondError(w, r, apperr.Validation("upload", name, "invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	if name == "" {
		name = r.FormValue("db_name")
		if name == "" {
			name = models.DefaultStoreName
		}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, apperr.Validation("upload", name, "multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, apperr.IO("upload", name, err))
		return
	}

	req := models.IngestRequest{StoreName: name, Filename: header.Filename, Content: content}
	if req.ChunkSize, err = formInt(r, "chunk_size"); err != nil {
		s.respondError(w, r, apperr.Validation("upload", name, "%v", err))
		return
	}
	if req.ChunkOverlap, err = formInt(r, "chunk_overlap"); err != nil {
		s.respondError(w, r, apperr.Validation("upload", name, "%v", err))
		return
	}

	s.logger.Debug("upload request", zap.String("store", name), zap.String("filename", header.Filename), zap.Int("bytes", len(content)))
	res, err := s.ingestor.Ingest(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("document ingested", zap.String("store", name), zap.String("filename", res.Filename), zap.Int("chunks", res.Chunks))
	s.respondJSON(w, http.StatusCreated, res)
}

// formInt parses an optional integer form field; missing means 0.
// formInt returns nil when key is absent or blank, so "0" stays distinguishable.
func formInt(r *http.Request, key string) (*int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return &n, nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, r, apperr.Validation("search", "", "invalid request body"))
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Text), zap.Int("top_k", query.K()), zap.String("store", query.StoreName))
	response, err := s.engine.Retrieve(r.Context(), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleRAG(w http.ResponseWriter, r *http.Request) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, r, apperr.Validation("rag", "", "invalid request body"))
		return
	}
	s.logger.Debug("rag request", zap.String("query", query.Text), zap.Int("top_k", query.K()), zap.String("store", query.StoreName))
	answer, err := s.engine.Answer(r.Context(), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.stores.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.StoreList{Count: len(stores), Databases: stores})
}

func (s *Server) handleStoreInfo(w http.ResponseWriter, r *http.Request) {
	detail, err := s.stores.Info(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.logger.Debug("delete store request", zap.String("store", name))
	path, err := s.stores.Delete(r.Context(), name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("store deleted", zap.String("store", name))
	s.respondJSON(w, http.StatusOK, models.DeleteResult{
		Status:      "success",
		Message:     fmt.Sprintf("Vector DB '%s' has been deleted", name),
		DeletedPath: path,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes err as {"error", "code"} with the status of its kind.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.String("code", kind.Code()), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.String("code", kind.Code()), zap.Error(err))
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error(), "code": kind.Code()})
}
