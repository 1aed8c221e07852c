// Package vector ranks restaurants by cosine similarity to a query embedding, either in memory or
// through an external Qdrant collection.
package vector

import (
	"context"

	"github.com/hyperjump/menurag/internal/models"
)

// SimilarityIndex holds one embedding per restaurant record.
type SimilarityIndex interface {
	// Build replaces the indexed contents with records and their vectors (same length, same order).
	Build(ctx context.Context, records []models.Restaurant, vectors [][]float32) error
	// Search returns up to topK hits ordered by descending score. topK <= 0 returns nothing.
	Search(ctx context.Context, query []float32, topK int) ([]*Hit, error)
	Size() int
	Close() error
}

// Hit is one ranked record. Index is the record's position in the slice given to Build.
type Hit struct {
	Index      int
	Restaurant models.Restaurant
	Score      float64
}
