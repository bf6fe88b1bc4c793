// Package vector stores chunk embeddings in interchangeable backends and
// serves similarity queries through an Orchestrator that falls back from one
// backend to the next.
package vector

import (
	"context"

	"github.com/hyperjump/kiku/internal/models"
)

// Backend is one vector store. Implementations classify their failures:
// models.ErrBackendUnavailable (fallback continues, models.ErrIndexEmpty
// included) or models.ErrIndexCorrupt (fallback stops).
type Backend interface {
	Kind() models.BackendKind
	// IsConfigured reports whether the backend has what it needs to run.
	// It is evaluated once, when the orchestrator is built.
	IsConfigured() bool
	Upsert(ctx context.Context, chunks []models.DocumentChunk) error
	// Query returns at most k results ordered by descending score.
	Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, error)
	// Size returns the number of stored chunks.
	Size(ctx context.Context) (int, error)
	Close() error
}

// PrioritizedBackend pairs a backend with its fallback priority. Lower is tried first.
type PrioritizedBackend struct {
	Backend  Backend
	Priority int
}
