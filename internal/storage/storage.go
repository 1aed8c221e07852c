// Package storage persists embeddings and ingestion history across restarts.
package storage

import (
	"context"

	"github.com/hyperjump/menurag/internal/models"
)

// EmbeddingStore is a persistent cache of embeddings keyed by a model-scoped text hash.
type EmbeddingStore interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key, model string, vec []float32) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// RunStore records ingestion runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.IngestRun) error
	GetRun(ctx context.Context, id string) (*models.IngestRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.IngestRun, error)
}
