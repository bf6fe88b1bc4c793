package vector

import (
	"sort"

	"github.com/hyperjump/kiku/internal/models"
)

// rankResults orders results by descending score, breaking ties by chunk id,
// keeps the first k and numbers them from 1.
func rankResults(results []models.RetrievalResult, k int) []models.RetrievalResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if k < len(results) {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}
