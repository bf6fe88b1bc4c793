// Package embedding turns text into vectors: the Gateway batches and caches
// calls to an Embedder capability (hashing, Ollama, or ONNX).
package embedding

import "context"

// Embedder produces vector embeddings for text, one vector per input in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector size, or 0 when it is only known after the first call.
	Dimensions() int
	Close() error
}
