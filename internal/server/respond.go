package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/models"
)

// retryAfterSeconds is sent with 502 and 503 responses.
const retryAfterSeconds = "5"

// errorStatus maps an error to an HTTP status and a client-facing message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, OwnerHeader + " header is required"
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrInvalidParameters):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrNoIndexAvailable):
		return http.StatusConflict, "no documents are indexed yet: ingest a document first"
	case errors.Is(err, models.ErrAllBackendsUnavailable):
		return http.StatusServiceUnavailable, "vector store is unavailable, try again later"
	case errors.Is(err, models.ErrEmbeddingFailed):
		return http.StatusBadGateway, "embedding failed, please retry"
	case errors.Is(err, models.ErrGenerationFailed):
		return http.StatusBadGateway, "answer generation failed, please retry"
	case errors.Is(err, models.ErrIndexCorrupt):
		return http.StatusInternalServerError, "vector index is corrupt"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
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

// respondErr logs err and writes its mapped status.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err), zap.Int("status", status))
	}
	if status == http.StatusServiceUnavailable || status == http.StatusBadGateway {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	s.respondError(w, status, msg)
}

// decodeJSON decodes the request body into v. An empty body is allowed when
// optional is true.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return fmt.Errorf("%w: invalid request body", models.ErrInvalidInput)
}
