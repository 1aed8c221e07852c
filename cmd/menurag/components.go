package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/menurag/internal/answer"
	"github.com/hyperjump/menurag/internal/catalog"
	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/internal/embedding"
	"github.com/hyperjump/menurag/internal/keyword"
	"github.com/hyperjump/menurag/internal/retrieval"
	"github.com/hyperjump/menurag/internal/server"
	"github.com/hyperjump/menurag/internal/storage"
	"github.com/hyperjump/menurag/internal/vector"
	"go.uber.org/zap"
)

// Components holds the wired retrieval stack for one catalog.
type Components struct {
	Config   *config.Config
	Loader   *catalog.Loader
	Embedder embedding.Embedder
	Index    vector.SimilarityIndex
	Lexical  *keyword.BleveIndex
	Pipeline *retrieval.Pipeline
	Runs     *storage.SQLiteStorage // nil when no cache path is configured
	logger   *zap.Logger
}

// Close releases every component that holds resources.
func (c *Components) Close() {
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Runs != nil {
		_ = c.Runs.Close()
	}
}

func catalogMode(cfg *config.Config) catalog.Mode {
	if cfg.Catalog.Streaming {
		return catalog.ModeStream
	}
	return catalog.ModeFull
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{
		Config: cfg,
		Loader: newLoader(cfg, logger),
		logger: logger,
	}

	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	index, err := vector.NewSimilarityIndex(cfg.Vector, embedder.Dimensions(), logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize similarity index: %w", err)
	}
	c.Index = index
	logger.Info("similarity index initialized",
		zap.String("type", cfg.Vector.IndexType), zap.Int("dimensions", embedder.Dimensions()))

	lexical, err := keyword.NewBleveIndex()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize lexical index: %w", err)
	}
	c.Lexical = lexical

	if cfg.Embedding.CachePath != "" {
		runs, err := storage.NewSQLiteStorage(cfg.Embedding.CachePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		c.Runs = runs
	}

	c.Pipeline = retrieval.NewPipeline(embedder, index, lexical, retrieval.Options{
		Strategy:        retrieval.StrategyFor(cfg.Vector.IndexType),
		OverFetchFactor: cfg.Retrieval.OverFetchFactor,
		LexicalFallback: cfg.Retrieval.LexicalFallback,
		Logger:          logger,
	})
	return c, nil
}

// LoadCatalog prepares the retrieval indexes. A memory index snapshot written by ingest is
// reused when it is at least as new as the catalog source; otherwise the source is read and the
// indexes are rebuilt from it.
func (c *Components) LoadCatalog(ctx context.Context) (int, error) {
	if n, ok := c.restoreSnapshot(ctx); ok {
		return n, nil
	}
	return c.rebuild(ctx)
}

// restoreSnapshot loads the memory index snapshot at IndexPath and adopts its records.
func (c *Components) restoreSnapshot(ctx context.Context) (int, bool) {
	mem, ok := c.Index.(*vector.MemoryIndex)
	path := c.Config.Vector.IndexPath
	if !ok || path == "" {
		return 0, false
	}
	snap, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	source := c.Loader.Path(c.Config.Catalog.Source)
	if src, err := os.Stat(source); err == nil && src.ModTime().After(snap.ModTime()) {
		c.logger.Info("index snapshot is older than the catalog, rebuilding",
			zap.String("snapshot", path), zap.String("source", source))
		return 0, false
	}
	if err := mem.Load(path); err != nil {
		c.logger.Warn("index snapshot unreadable, rebuilding", zap.String("snapshot", path), zap.Error(err))
		return 0, false
	}
	restaurants := mem.Records()
	if len(restaurants) == 0 {
		return 0, false
	}
	if err := c.Pipeline.Restore(ctx, restaurants); err != nil {
		c.logger.Warn("index snapshot restore failed, rebuilding", zap.Error(err))
		return 0, false
	}
	c.logger.Info("index snapshot restored", zap.String("snapshot", path), zap.Int("restaurants", len(restaurants)))
	return len(restaurants), true
}

func (c *Components) rebuild(ctx context.Context) (int, error) {
	restaurants := c.Loader.LoadAll(c.Config.Catalog.Source, catalogMode(c.Config))
	if len(restaurants) == 0 {
		c.logger.Warn("catalog is empty", zap.String("source", c.Loader.Path(c.Config.Catalog.Source)))
	}
	if err := c.Pipeline.Rebuild(ctx, restaurants); err != nil {
		return 0, err
	}
	return len(restaurants), nil
}

// Reload drops the cached catalog and rebuilds from disk, ignoring any index snapshot.
func (c *Components) Reload(ctx context.Context) {
	c.Loader.Invalidate()
	n, err := c.rebuild(ctx)
	if err != nil {
		c.logger.Error("catalog reload failed", zap.Error(err))
		return
	}
	c.logger.Info("catalog reloaded", zap.Int("restaurants", n))
}

// Status reports catalog and index sizes for the status endpoint and command.
func (c *Components) Status(ctx context.Context) (server.Status, error) {
	if err := ctx.Err(); err != nil {
		return server.Status{}, err
	}
	st := server.Status{
		CatalogSource: c.Loader.Path(c.Config.Catalog.Source),
		CatalogSize:   c.Loader.Count(c.Config.Catalog.Source),
		IndexType:     c.Config.Vector.IndexType,
		IndexSize:     c.Pipeline.Size(),
	}
	var paths []string
	if c.Config.Embedding.CachePath != "" {
		paths = append(paths, storage.DatabaseFiles(c.Config.Embedding.CachePath)...)
	}
	if c.Config.Vector.IndexPath != "" {
		paths = append(paths, c.Config.Vector.IndexPath)
	}
	if len(paths) > 0 {
		bytes, err := storage.DiskUsageBytes(paths...)
		if err != nil {
			return st, fmt.Errorf("failed to measure disk usage: %w", err)
		}
		st.DiskUsageBytes = bytes
	}
	return st, nil
}

func newComposer(cfg *config.Config, searcher answer.Searcher, logger *zap.Logger) (*answer.Composer, error) {
	gen, err := answer.NewGenerator(cfg.Generation)
	if err != nil {
		return nil, err
	}
	return answer.NewComposer(searcher, gen,
		answer.WithTopK(cfg.Retrieval.RestaurantTopK, cfg.Retrieval.MenuItemTopK),
		answer.WithLogger(logger)), nil
}

func newLoader(cfg *config.Config, logger *zap.Logger) *catalog.Loader {
	return catalog.NewLoader(cfg.Catalog.DataDir, catalog.WithLogger(logger))
}
