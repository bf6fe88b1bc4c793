package embedding

import (
	"context"

	"github.com/hyperjump/kiku/pkg/utils"
)

// DefaultHashingDimensions is used when NewHashingEmbedder gets a non-positive size.
const DefaultHashingDimensions = 512

// HashingEmbedder is a deterministic bag-of-words embedder: each word is
// hashed into one of a fixed number of buckets and the counts are L2
// normalized. Texts sharing words get a positive cosine similarity, which
// is enough for zero-config runs and tests. It needs no model or network.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given dimensions.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the embedding of a single text.
func (e *HashingEmbedder) Embed(text string) []float32 {
	emb := make([]float32, e.dimensions)
	for _, w := range Words(text) {
		emb[HashString(w)%e.dimensions]++
	}
	utils.NormalizeL2(emb)
	return emb
}

// EmbedBatch embeds each text. It only fails when ctx is done.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.Embed(text)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashingEmbedder) Close() error {
	return nil
}
