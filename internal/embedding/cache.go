package embedding

import (
	"container/list"
	"slices"
	"sync"
)

// EmbeddingCache is an LRU cache of vectors keyed by the embedded text. It
// stores and hands out copies, so callers may modify what they get back.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front is most recently used
	hits     uint64
	misses   uint64
}

type cacheEntry struct {
	text   string
	vector []float32
}

// CacheStats counts lookups since the cache was created.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// NewEmbeddingCache creates a cache holding up to capacity vectors.
// A capacity of zero or less returns nil, which is a valid always-miss cache.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		return nil
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the vector cached for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return slices.Clone(elem.Value.(*cacheEntry).vector), true
}

// Set caches a copy of vector for text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, vector []float32) {
	if c == nil || len(vector) == 0 {
		return
	}
	vector = slices.Clone(vector)
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		elem.Value.(*cacheEntry).vector = vector
		c.order.MoveToFront(elem)
		return
	}
	c.entries[text] = c.order.PushFront(&cacheEntry{text: text, vector: vector})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).text)
	}
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	return c.Stats().Entries
}

// Stats returns the entry count and lookup counters.
func (c *EmbeddingCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Hits: c.hits, Misses: c.misses}
}
