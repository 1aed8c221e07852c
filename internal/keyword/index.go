// Package keyword ranks restaurants and menu items lexically with Bleve. It backs retrieval when
// a query cannot be embedded.
package keyword

import (
	"context"

	"github.com/hyperjump/menurag/internal/models"
)

// SearchOptions tunes lexical matching. Nil means defaults.
type SearchOptions struct {
	// NameBoost multiplies matches in restaurant and dish names. Values <= 1 disable the boost.
	NameBoost float64
	// Fuzziness is the maximum edit distance per term (0 disables, at most 2). It absorbs missing
	// Vietnamese diacritics, so "pho" still finds "phở".
	Fuzziness int
}

// DefaultSearchOptions boosts names threefold and tolerates one edit per term.
func DefaultSearchOptions() *SearchOptions {
	return &SearchOptions{NameBoost: 3, Fuzziness: 1}
}

// Index is a lexical index over one catalog snapshot.
type Index interface {
	// Build replaces the indexed catalog.
	Build(ctx context.Context, restaurants []models.Restaurant) error
	SearchRestaurants(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	SearchItems(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	DocCount() (uint64, error)
	Close() error
}

// Result is a lexical hit. Restaurant is the catalog position; Item is the menu position, or -1
// for a restaurant-level hit.
type Result struct {
	Restaurant int
	Item       int
	Score      float64
}
