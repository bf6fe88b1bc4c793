package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
)

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	if limit := s.config.Server.MaxUploadBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	req, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("document exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.respondErr(w, r, "ingest", err)
		return
	}
	s.logger.Debug("ingest request", zap.String("name", req.Name), zap.Int("bytes", len(req.Content)))
	res, err := s.ingester.Ingest(r.Context(), req)
	if err != nil {
		s.respondErr(w, r, "ingest", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

// readUpload reads a document from a multipart "file" field or, for any other
// content type, from the raw body named by the "name" query parameter.
func readUpload(r *http.Request) (models.IngestRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return models.IngestRequest{}, err
			}
			return models.IngestRequest{}, fmt.Errorf("%w: multipart field \"file\" is required", models.ErrInvalidInput)
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			return models.IngestRequest{}, err
		}
		return models.IngestRequest{Name: header.Filename, Content: content}, nil
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		return models.IngestRequest{}, fmt.Errorf("%w: name query parameter is required", models.ErrInvalidInput)
	}
	content, err := io.ReadAll(r.Body)
	if err != nil {
		return models.IngestRequest{}, err
	}
	return models.IngestRequest{Name: filepath.Base(name), Content: content}, nil
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req models.AnswerRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondErr(w, r, "ask", err)
		return
	}
	req.OwnerID = s.identity.OwnerID(r)
	s.logger.Debug("ask request",
		zap.Int("history", len(req.History)),
		zap.String("conversation_id", req.ConversationID),
		zap.Bool("anonymous", req.OwnerID == ""))

	ctx := r.Context()
	s.configMu.Lock()
	timeout := s.config.Retrieval.Timeout
	s.configMu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := s.answerer.Answer(ctx, req)
	if err != nil {
		s.respondErr(w, r, "ask", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Backends  []models.BackendDescriptor `json:"backends"`
	Populated bool                       `json:"populated"`
	Disk      *storage.Usage             `json:"disk,omitempty"`
	Config    map[string]interface{}     `json:"config"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{Backends: []models.BackendDescriptor{}}
	if s.backends != nil {
		resp.Backends = s.backends.Descriptors(ctx)
		resp.Populated = s.backends.Populated(ctx)
	}

	s.configMu.Lock()
	cfg := *s.config
	s.configMu.Unlock()

	resp.Config = cfg.Summary()

	usage, err := storage.MeasureUsage(storage.ConfiguredLocations(&cfg)...)
	if err != nil {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	} else {
		resp.Disk = &usage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.respondErr(w, r, "watch add", err)
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondErr(w, r, "watch add", err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondErr(w, r, "watch add", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := decodeJSON(r, &body, true); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondErr(w, r, "watch remove", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current watch roots to the config file.
func (s *Server) persistWatchDirectories() {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if s.configPath == "" {
		return
	}
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}
