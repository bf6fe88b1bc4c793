package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/kiku/internal/models"
	"go.uber.org/zap"
)

// LocalBackend is an in-memory index persisted to a single file. The file is
// loaded lazily on first use; a missing file is an empty index, and a corrupt
// one is set aside as <path>.corrupt and replaced by an empty index. So is a
// file written for a different embedding dimension. Every upsert rewrites the
// file atomically before the new generation is published.
type LocalBackend struct {
	path       string
	index      *Index
	logger     *zap.Logger
	dimensions func() int

	loadOnce sync.Once
	loadErr  error
}

// LocalOption configures a LocalBackend.
type LocalOption func(*LocalBackend)

// WithLocalLogger sets a logger for load and persistence events.
func WithLocalLogger(l *zap.Logger) LocalOption {
	return func(b *LocalBackend) { b.logger = l }
}

// WithLocalDimensions reports the embedder's current vector size, 0 while unknown.
// A stored index of any other size is set aside once the size is known.
func WithLocalDimensions(dims func() int) LocalOption {
	return func(b *LocalBackend) { b.dimensions = dims }
}

// NewLocalBackend returns a backend persisted at path. Nothing is read until first use.
func NewLocalBackend(path string, opts ...LocalOption) *LocalBackend {
	b := &LocalBackend{
		path:   path,
		index:  NewIndex(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *LocalBackend) Kind() models.BackendKind { return models.BackendLocalPersistent }

// IsConfigured reports whether a path is set.
func (b *LocalBackend) IsConfigured() bool { return b.path != "" }

// Path returns the index file path.
func (b *LocalBackend) Path() string { return b.path }

func (b *LocalBackend) load() error {
	b.loadOnce.Do(func() {
		f, err := os.Open(b.path)
		if errors.Is(err, os.ErrNotExist) {
			b.logger.Debug("local index file not found, starting empty", zap.String("path", b.path))
			return
		}
		if err != nil {
			b.loadErr = fmt.Errorf("%w: open local index: %w", models.ErrBackendUnavailable, err)
			return
		}
		var snap *snapshot
		info, err := f.Stat()
		if err == nil {
			snap, err = decodeSnapshot(f, info.Size())
		}
		_ = f.Close()
		if err != nil {
			b.setAside(err)
			return
		}
		b.index.swap(snap)
		b.logger.Info("local index loaded", zap.String("path", b.path), zap.Int("chunks", snap.len()))
	})
	return b.loadErr
}

func (b *LocalBackend) checkDimensions(stored int) error {
	if b.dimensions == nil {
		return nil
	}
	if want := b.dimensions(); want > 0 && stored != want {
		return fmt.Errorf("index has %d dimensions, embedder produces %d", stored, want)
	}
	return nil
}

// ready loads the file and drops a generation whose dimensions no longer
// match the embedder.
func (b *LocalBackend) ready() error {
	if err := b.load(); err != nil {
		return err
	}
	b.index.discardIf(func(stored int) bool {
		err := b.checkDimensions(stored)
		if err != nil {
			b.setAside(err)
		}
		return err != nil
	})
	return nil
}

// setAside moves an unusable index file out of the way so the next write starts clean.
func (b *LocalBackend) setAside(cause error) {
	bad := b.path + ".corrupt"
	if err := os.Rename(b.path, bad); err != nil {
		b.logger.Error("local index unusable and could not be moved",
			zap.String("path", b.path), zap.Error(cause), zap.NamedError("rename_error", err))
		return
	}
	b.logger.Warn("local index unusable, starting empty",
		zap.String("path", b.path), zap.String("moved_to", bad), zap.Error(cause))
}

// persist writes s to a temp file next to the index and renames it into place.
func (b *LocalBackend) persist(s *snapshot) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create index dir: %w", models.ErrBackendUnavailable, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp index: %w", models.ErrBackendUnavailable, err)
	}
	tmpPath := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write local index: %w", models.ErrBackendUnavailable, err)
	}
	if err := encodeSnapshot(tmp, s); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: replace local index: %w", models.ErrBackendUnavailable, err)
	}
	return nil
}

// Upsert inserts or replaces chunks and persists the result. If the write
// fails the in-memory index is unchanged.
func (b *LocalBackend) Upsert(ctx context.Context, chunks []models.DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.ready(); err != nil {
		return err
	}
	if err := b.index.Upsert(chunks, b.persist); err != nil {
		return err
	}
	b.logger.Debug("local index updated", zap.Int("chunks", len(chunks)), zap.Int("total", b.index.Len()))
	return nil
}

// Query returns the k most similar chunks.
func (b *LocalBackend) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.ready(); err != nil {
		return nil, err
	}
	return b.index.Search(vector, k)
}

// Size returns the number of stored chunks.
func (b *LocalBackend) Size(ctx context.Context) (int, error) {
	if err := b.ready(); err != nil {
		return 0, err
	}
	if err := b.index.Err(); err != nil {
		return 0, err
	}
	return b.index.Len(), nil
}

// Close is a no-op; every upsert is already on disk.
func (b *LocalBackend) Close() error {
	return nil
}
