package vector

import (
	"context"

	"github.com/hyperjump/kiku/internal/models"
)

// MemoryBackend keeps chunks in process memory only; they are lost on restart.
type MemoryBackend struct {
	index *Index
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{index: NewIndex()}
}

func (m *MemoryBackend) Kind() models.BackendKind { return models.BackendInMemoryEphemeral }

// IsConfigured is always true.
func (m *MemoryBackend) IsConfigured() bool { return true }

// Upsert inserts or replaces chunks by id.
func (m *MemoryBackend) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.index.Upsert(chunks, nil)
}

// Query returns the k most similar chunks.
func (m *MemoryBackend) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.index.Search(vector, k)
}

// Size returns the number of chunks held.
func (m *MemoryBackend) Size(ctx context.Context) (int, error) {
	if err := m.index.Err(); err != nil {
		return 0, err
	}
	return m.index.Len(), nil
}

// Close is a no-op for MemoryBackend.
func (m *MemoryBackend) Close() error {
	return nil
}
