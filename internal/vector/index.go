package vector

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/pkg/utils"
)

// snapshot is one immutable generation of an index. Writers build a new
// snapshot and swap it in; readers keep whatever snapshot they loaded.
type snapshot struct {
	dimensions int
	chunks     []models.DocumentChunk
	byID       map[string]int
}

var emptySnapshot = &snapshot{byID: map[string]int{}}

func (s *snapshot) len() int { return len(s.chunks) }

// withUpsert returns a new snapshot with chunks inserted or replaced by id.
// The receiver is left untouched.
func (s *snapshot) withUpsert(chunks []models.DocumentChunk) (*snapshot, error) {
	dims := s.dimensions
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return nil, fmt.Errorf("%w: chunk %s has no embedding", models.ErrInvalidInput, ch.ID)
		}
		if dims == 0 {
			dims = len(ch.Embedding)
		}
		if len(ch.Embedding) != dims {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
				models.ErrIndexCorrupt, ch.ID, len(ch.Embedding), dims)
		}
	}
	next := &snapshot{
		dimensions: dims,
		chunks:     make([]models.DocumentChunk, len(s.chunks), len(s.chunks)+len(chunks)),
		byID:       make(map[string]int, len(s.byID)+len(chunks)),
	}
	copy(next.chunks, s.chunks)
	for id, i := range s.byID {
		next.byID[id] = i
	}
	for _, ch := range chunks {
		vec := make([]float32, len(ch.Embedding))
		copy(vec, ch.Embedding)
		ch.Embedding = vec
		if i, ok := next.byID[ch.ID]; ok {
			next.chunks[i] = ch
			continue
		}
		next.byID[ch.ID] = len(next.chunks)
		next.chunks = append(next.chunks, ch)
	}
	return next, nil
}

func (s *snapshot) search(query []float32, k int) []models.RetrievalResult {
	results := make([]models.RetrievalResult, len(s.chunks))
	for i, ch := range s.chunks {
		stripped := ch
		stripped.Embedding = nil
		results[i] = models.RetrievalResult{
			Chunk: stripped,
			Score: utils.CosineSimilarity(query, ch.Embedding),
		}
	}
	return rankResults(results, k)
}

// Index is a brute-force cosine index with a single writer and many readers.
// Readers always see a complete generation; an upsert in progress is never
// visible. Upserting chunks whose dimensions disagree with the stored ones
// poisons the index for the rest of the process; a mismatched query does not.
type Index struct {
	writeMu  sync.Mutex   // serializes writers
	mu       sync.RWMutex // guards cur and poisoned
	cur      *snapshot
	poisoned error
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{cur: emptySnapshot}
}

func (ix *Index) snapshot() (*snapshot, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.cur, ix.poisoned
}

func (ix *Index) swap(s *snapshot) {
	ix.mu.Lock()
	ix.cur = s
	ix.mu.Unlock()
}

func (ix *Index) poison(err error) {
	ix.mu.Lock()
	if ix.poisoned == nil {
		ix.poisoned = err
	}
	ix.mu.Unlock()
}

// Upsert builds the next generation, hands it to commit (which may persist
// it), and publishes it only when commit succeeds. commit may be nil.
func (ix *Index) Upsert(chunks []models.DocumentChunk, commit func(*snapshot) error) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	cur, poisoned := ix.snapshot()
	if poisoned != nil {
		return poisoned
	}
	next, err := cur.withUpsert(chunks)
	if err != nil {
		if errors.Is(err, models.ErrIndexCorrupt) {
			ix.poison(err)
		}
		return err
	}
	if commit != nil {
		if err := commit(next); err != nil {
			return err
		}
	}
	ix.swap(next)
	return nil
}

// Search returns the k chunks most similar to query. An empty index fails
// with models.ErrIndexEmpty.
func (ix *Index) Search(query []float32, k int) ([]models.RetrievalResult, error) {
	snap, poisoned := ix.snapshot()
	if poisoned != nil {
		return nil, poisoned
	}
	if snap.len() == 0 {
		return nil, models.ErrIndexEmpty
	}
	if len(query) != snap.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			models.ErrBackendUnavailable, len(query), snap.dimensions)
	}
	if k <= 0 {
		return []models.RetrievalResult{}, nil
	}
	return snap.search(query, k), nil
}

// Dimensions returns the vector size of the current generation, 0 when empty.
func (ix *Index) Dimensions() int {
	snap, _ := ix.snapshot()
	return snap.dimensions
}

// discardIf replaces a non-empty generation with an empty one, and clears
// any poisoning, when drop reports true for its dimensions. drop runs under
// the write lock, so no upsert commits while it does.
func (ix *Index) discardIf(drop func(dims int) bool) bool {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	cur, _ := ix.snapshot()
	if cur.len() == 0 || !drop(cur.dimensions) {
		return false
	}
	ix.mu.Lock()
	ix.cur = emptySnapshot
	ix.poisoned = nil
	ix.mu.Unlock()
	return true
}

// Len returns the number of chunks in the current generation.
func (ix *Index) Len() int {
	snap, _ := ix.snapshot()
	return snap.len()
}

// Err returns the poisoning error, if any.
func (ix *Index) Err() error {
	_, poisoned := ix.snapshot()
	return poisoned
}
