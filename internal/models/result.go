package models

// RetrievalResult is a chunk returned by similarity search. Never persisted.
type RetrievalResult struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
	Rank  int           `json:"rank"`
}

// Source is the part of a retrieval result exposed to API callers.
type Source struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float64 `json:"score"`
	Snippet       string  `json:"snippet"`
}
