package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/kiku/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Gateway defaults.
const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
)

// Gateway coordinates calls to an Embedder: it consults the cache, splits the
// misses into batches, runs batches concurrently, and reassembles results in
// input order. A call either returns one vector per text or fails as a whole
// with models.ErrEmbeddingFailed.
type Gateway struct {
	embedder    Embedder
	cache       *EmbeddingCache
	batchSize   int
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithCache sets an LRU cache consulted before dispatch.
func WithCache(c *EmbeddingCache) GatewayOption {
	return func(g *Gateway) { g.cache = c }
}

// WithBatchSize sets how many texts go into one EmbedBatch call.
func WithBatchSize(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithConcurrency bounds the number of batches in flight.
func WithConcurrency(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway wraps an embedder.
func NewGateway(e Embedder, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		embedder:    e,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embed returns one vector per text, in the same order.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var misses []int
	for i, text := range texts {
		if v, ok := g.cache.Get(text); ok {
			out[i] = v
			continue
		}
		misses = append(misses, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for lo := 0; lo < len(misses); lo += g.batchSize {
		batch := misses[lo:min(lo+g.batchSize, len(misses))]
		eg.Go(func() error {
			return g.embedBatch(egCtx, texts, batch, out)
		})
	}
	if err := eg.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		g.logger.Warn("embedding call failed", zap.Int("texts", len(texts)), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
	}
	if err := sameDimensions(out); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
	}
	for _, i := range misses {
		g.cache.Set(texts[i], out[i])
	}
	stats := g.cache.Stats()
	g.logger.Debug("embedded texts",
		zap.Int("texts", len(texts)),
		zap.Int("cache_hits", len(texts)-len(misses)),
		zap.Int("cache_entries", stats.Entries),
		zap.Uint64("cache_hits_total", stats.Hits),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// embedBatch embeds texts[idx...] and writes each vector to its slot in out.
// Slots are disjoint across batches, so no locking is needed.
func (g *Gateway) embedBatch(ctx context.Context, texts []string, idx []int, out [][]float32) error {
	batch := make([]string, len(idx))
	for j, i := range idx {
		batch[j] = texts[i]
	}
	vecs, err := g.embedder.EmbedBatch(ctx, batch)
	if err != nil {
		return err
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
	}
	for j, i := range idx {
		if len(vecs[j]) == 0 {
			return fmt.Errorf("embedder returned an empty vector for text %d", i)
		}
		out[i] = vecs[j]
	}
	return nil
}

func sameDimensions(vecs [][]float32) error {
	for i := 1; i < len(vecs); i++ {
		if len(vecs[i]) != len(vecs[0]) {
			return fmt.Errorf("vector %d has %d dimensions, want %d", i, len(vecs[i]), len(vecs[0]))
		}
	}
	return nil
}

// Dimensions returns the dimensions reported by the underlying embedder.
func (g *Gateway) Dimensions() int {
	return g.embedder.Dimensions()
}

// Close closes the underlying embedder.
func (g *Gateway) Close() error {
	return g.embedder.Close()
}
