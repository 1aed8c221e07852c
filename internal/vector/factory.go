package vector

import (
	"fmt"

	"github.com/hyperjump/menurag/internal/config"
	"go.uber.org/zap"
)

// IndexType selects a SimilarityIndex implementation.
type IndexType string

const (
	// IndexTypeMemory keeps vectors in process and ranks by brute force. Suited to catalogs of a
	// few thousand restaurants.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeQdrant stores vectors in a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewSimilarityIndex creates the index named by cfg.IndexType ("memory" when empty).
func NewSimilarityIndex(cfg config.VectorConfig, dimensions int, logger *zap.Logger) (SimilarityIndex, error) {
	switch IndexType(cfg.IndexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypeQdrant:
		return NewQdrantIndex(QdrantOptions{
			Address:    cfg.Qdrant.Address,
			Collection: cfg.Qdrant.Collection,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Logger:     logger,
		}, dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, qdrant)", cfg.IndexType)
	}
}
