package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/extract"
	"github.com/hyperjump/kiku/internal/fileid"
	"github.com/hyperjump/kiku/internal/models"
)

// Embedder turns chunk texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore accepts embedded chunks and reports which backend took them.
type ChunkStore interface {
	Upsert(ctx context.Context, chunks []models.DocumentChunk) (models.BackendKind, error)
}

// Indexer runs ingestion: extract, chunk, embed, upsert.
type Indexer struct {
	embedder  Embedder
	store     ChunkStore
	chunker   *Chunker
	extractor *extract.Extractor
	logger    *zap.Logger

	mu    sync.Mutex
	files map[string]fileState // last ingested state per absolute path
}

type fileState struct {
	mtime int64
	size  int64
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (file ingested, file skipped, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) {
		if e != nil {
			idx.extractor = e
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(embedder Embedder, store ChunkStore, chunker *Chunker, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		embedder:  embedder,
		store:     store,
		chunker:   chunker,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
		files:     make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest indexes an uploaded document. Its id is derived from the content,
// so uploading the same bytes twice replaces the same chunks.
func (idx *Indexer) Ingest(ctx context.Context, req models.IngestRequest) (*models.IngestResult, error) {
	return idx.ingest(ctx, fileid.ContentDocID(req.Content), req.Name, req.Content)
}

func (idx *Indexer) ingest(ctx context.Context, docID, name string, content []byte) (*models.IngestResult, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrInvalidInput, name)
	}
	raw, err := idx.extractor.Extract(name, content)
	if err != nil {
		return nil, err
	}
	text := Preprocess(raw)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text could be extracted from %s", models.ErrInvalidInput, name)
	}

	chunks := idx.chunker.Chunk(docID, text)
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	kind, err := idx.store.Upsert(ctx, chunks)
	if err != nil {
		return nil, err
	}
	idx.logger.Debug("document ingested",
		zap.String("name", name), zap.String("doc_id", docID),
		zap.Int("chunks", len(chunks)), zap.String("backend", string(kind)))
	return &models.IngestResult{
		DocumentID:  docID,
		Name:        name,
		ChunkCount:  len(chunks),
		BackendUsed: kind,
	}, nil
}

// IngestFile reads a file from path and ingests it. The document id is derived
// from the absolute path so re-ingesting a changed file replaces its chunks. If
// allowedExts is non-empty, the file's extension must be in the list
// (case-insensitive). A file whose mtime and size are unchanged since the last
// successful ingest in this process is skipped and returns a nil result.
func (idx *Indexer) IngestFile(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("%w: extension %q not in allowed list", models.ErrInvalidInput, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidInput, absPath)
	}
	state := fileState{mtime: info.ModTime().UnixNano(), size: info.Size()}
	idx.mu.Lock()
	prev, seen := idx.files[absPath]
	idx.mu.Unlock()
	if seen && prev == state {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return nil, nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	res, err := idx.ingest(ctx, fileid.FileDocID(absPath), filepath.Base(absPath), content)
	if err != nil {
		return nil, err
	}
	idx.mu.Lock()
	idx.files[absPath] = state
	idx.mu.Unlock()
	return res, nil
}

// IngestDirectory walks dir recursively and ingests each regular file whose
// extension is in allowedExts (all files when empty). Files with no usable
// text are logged and skipped; any other error stops the walk. Returns the
// number of files ingested.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so we only ingest regular files
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, ingestErr := idx.IngestFile(ctx, path, allowedExts)
		if errors.Is(ingestErr, models.ErrInvalidInput) {
			idx.logger.Warn("skipping file", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		if ingestErr != nil {
			return fmt.Errorf("%s: %w", path, ingestErr)
		}
		if res != nil {
			n++
		}
		return nil
	})
	return n, err
}

// Forget drops the remembered state of a file so the next IngestFile re-reads it.
func (idx *Indexer) Forget(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	idx.mu.Lock()
	delete(idx.files, absPath)
	idx.mu.Unlock()
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
