// Package models defines core data structures for chunks, questions, answers, and conversations.
package models

// DocumentChunk is one retrievable unit of a source document.
// Chunks are immutable once created; SequenceIndex is provenance only.
type DocumentChunk struct {
	ID            string    `json:"id" db:"id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	SequenceIndex int       `json:"sequence_index" db:"sequence_index"`
	Text          string    `json:"text" db:"text"`
	Embedding     []float32 `json:"-" db:"-"`
}

// IngestRequest is a raw document submitted for indexing.
type IngestRequest struct {
	Name    string `json:"name"`
	Content []byte `json:"-"`
}

// IngestResult reports where an ingested document ended up.
type IngestResult struct {
	DocumentID  string      `json:"document_id"`
	Name        string      `json:"name,omitempty"`
	ChunkCount  int         `json:"chunk_count"`
	BackendUsed BackendKind `json:"backend_used"`
}
