package vector

import (
	"context"
	"testing"

	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/internal/models"
)

func TestNewSimilarityIndex_Memory(t *testing.T) {
	idx, err := NewSimilarityIndex(config.VectorConfig{IndexType: "memory"}, 3, nil)
	if err != nil {
		t.Fatalf("NewSimilarityIndex(memory): %v", err)
	}
	defer idx.Close()

	err = idx.Build(context.Background(), []models.Restaurant{{ID: "1", Name: "A"}}, [][]float32{{1, 0, 0}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}

func TestNewSimilarityIndex_EmptyDefaultsToMemory(t *testing.T) {
	idx, err := NewSimilarityIndex(config.VectorConfig{}, 3, nil)
	if err != nil {
		t.Fatalf("NewSimilarityIndex(''): %v", err)
	}
	defer idx.Close()
	if _, ok := idx.(*MemoryIndex); !ok {
		t.Errorf("got %T, want *MemoryIndex", idx)
	}
}

func TestNewSimilarityIndex_Qdrant(t *testing.T) {
	cfg := config.VectorConfig{IndexType: "qdrant", Qdrant: config.QdrantConfig{
		Address: "localhost:6334", Collection: "restaurant_collection", APIKey: "k",
	}}
	idx, err := NewSimilarityIndex(cfg, 3, nil)
	if err != nil {
		t.Fatalf("NewSimilarityIndex(qdrant): %v", err)
	}
	defer idx.Close()
	q, ok := idx.(*QdrantIndex)
	if !ok {
		t.Fatalf("got %T, want *QdrantIndex", idx)
	}
	if q.Type() != "qdrant" || q.collection != "restaurant_collection" {
		t.Errorf("unexpected index: type=%s collection=%s", q.Type(), q.collection)
	}
}

func TestNewSimilarityIndex_Unknown(t *testing.T) {
	if _, err := NewSimilarityIndex(config.VectorConfig{IndexType: "faiss"}, 3, nil); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewSimilarityIndex_InvalidDimension(t *testing.T) {
	if _, err := NewSimilarityIndex(config.VectorConfig{}, 0, nil); err == nil {
		t.Error("expected error for zero dimension")
	}
}
