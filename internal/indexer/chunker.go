// Package indexer provides document chunking and ingestion.
package indexer

import (
	"fmt"

	"github.com/hyperjump/kiku/internal/models"
)

var (
	paragraphBreaks = [][]rune{[]rune("\n\n")}
	sentenceEnds    = [][]rune{[]rune(". "), []rune("! "), []rune("? "), []rune("\n")}
	wordBreaks      = [][]rune{[]rune(" ")}
)

// Chunker splits text into overlapping character windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in characters).
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if err := validateParams(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// Chunk splits text into DocumentChunks with overlapping windows.
func (c *Chunker) Chunk(docID, text string) []models.DocumentChunk {
	chunks, _ := Split(docID, text, c.chunkSize, c.chunkOverlap)
	return chunks
}

// Split divides text into chunks of at most targetSize characters where each
// chunk after the first starts exactly overlap characters before the previous
// one ends. Dropping the first overlap characters of every chunk but the first
// and concatenating the rest yields text unchanged.
//
// Chunks prefer to end after a paragraph break, then a sentence end, then a
// space, and fall back to a hard cut. A boundary is only taken when the chunk
// keeps at least half of targetSize and more than overlap characters.
func Split(docID, text string, targetSize, overlap int) ([]models.DocumentChunk, error) {
	if err := validateParams(targetSize, overlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return []models.DocumentChunk{}, nil
	}

	minLen := max(targetSize/2, overlap+1)
	chunks := make([]models.DocumentChunk, 0, len(runes)/(targetSize-overlap)+1)
	start := 0
	for {
		end := len(runes)
		if end-start > targetSize {
			end = chunkEnd(runes, start+minLen, start+targetSize)
		}
		seq := len(chunks)
		chunks = append(chunks, models.DocumentChunk{
			ID:            ChunkID(docID, seq),
			DocumentID:    docID,
			SequenceIndex: seq,
			Text:          string(runes[start:end]),
		})
		if end == len(runes) {
			return chunks, nil
		}
		start = end - overlap
	}
}

// ChunkID returns the id of the seq-th chunk of a document. Ids are stable so
// re-ingesting a document overwrites its chunks in backends that upsert by id.
func ChunkID(docID string, seq int) string {
	return fmt.Sprintf("%s_%d", docID, seq)
}

func validateParams(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidParameters, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", models.ErrInvalidParameters, size, overlap)
	}
	return nil
}

// chunkEnd picks the exclusive end of a chunk within [lo, hi].
func chunkEnd(runes []rune, lo, hi int) int {
	for _, seps := range [][][]rune{paragraphBreaks, sentenceEnds, wordBreaks} {
		if end := lastBoundary(runes, lo, hi, seps); end > 0 {
			return end
		}
	}
	return hi
}

// lastBoundary returns the largest end in [lo, hi] that directly follows one of seps, or -1.
func lastBoundary(runes []rune, lo, hi int, seps [][]rune) int {
	for end := hi; end >= lo; end-- {
		for _, sep := range seps {
			if hasSuffixAt(runes, end, sep) {
				return end
			}
		}
	}
	return -1
}

func hasSuffixAt(runes []rune, end int, sep []rune) bool {
	begin := end - len(sep)
	if begin < 0 {
		return false
	}
	for i, r := range sep {
		if runes[begin+i] != r {
			return false
		}
	}
	return true
}
