package embedding

import (
	"fmt"

	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/internal/storage"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider. When cfg.CachePath is set, a SQLite store
// backs the LRU and is closed with the embedder.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	opts := []Option{
		WithLogger(logger),
		WithCacheSize(cfg.CacheSize),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		WithBaseURL(cfg.BaseURL),
	}
	openStore := func() (*storage.SQLiteStorage, error) {
		if cfg.CachePath == "" {
			return nil, nil
		}
		s, err := storage.NewSQLiteStorage(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open embedding cache: %w", err)
		}
		opts = append(opts, WithStore(s))
		return s, nil
	}

	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimensions), nil
	case "onnx":
		s, err := openStore()
		if err != nil {
			return nil, err
		}
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, opts...)
		if err != nil {
			closeStore(s)
			return nil, err
		}
		return e, nil
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, &config.ConfigurationError{Key: "OPENAI_API_KEY"}
		}
		s, err := openStore()
		if err != nil {
			return nil, err
		}
		e, err := NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...)
		if err != nil {
			closeStore(s)
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func closeStore(s *storage.SQLiteStorage) {
	if s != nil {
		_ = s.Close()
	}
}
