// Package embedding turns text into fixed-dimension vectors through a remote API, a local ONNX
// model, or a deterministic hashing model, with per-item failure isolation and caching.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperjump/menurag/internal/storage"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
//
// EmbedBatch always returns exactly one vector per input, in input order, each of length
// Dimensions(). A text that cannot be embedded gets a zero vector; the batch is never aborted.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Option configures the embedders built by this package.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	store     storage.EmbeddingStore
	cacheSize int
	rps       float64
	burst     int
	baseURL   string
}

func newOptions(opts []Option) *options {
	o := &options{logger: zap.NewNop(), cacheSize: 10000}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for per-item failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = utils.OrNop(l) }
}

// WithStore puts a persistent cache behind the in-process LRU.
func WithStore(s storage.EmbeddingStore) Option {
	return func(o *options) { o.store = s }
}

// WithCacheSize sets the LRU capacity. Zero or negative disables the LRU.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithRateLimit throttles outbound requests to rps with the given burst. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = burst
	}
}

// WithBaseURL points the remote client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// ZeroVector returns the fallback vector for a failed item.
func ZeroVector(dims int) []float32 {
	return make([]float32, dims)
}

// embedEach embeds texts one at a time, substituting a zero vector for every failure.
func embedEach(ctx context.Context, embed func(context.Context, string) ([]float32, error), texts []string, dims int, logger *zap.Logger) [][]float32 {
	out := make([][]float32, len(texts))
	failed := 0
	for i, text := range texts {
		vec, err := embed(ctx, text)
		if err != nil {
			failed++
			logger.Warn("embedding failed, using zero vector",
				zap.Int("index", i),
				zap.String("text", utils.Truncate(text, 60)),
				zap.Error(err))
			out[i] = ZeroVector(dims)
			continue
		}
		out[i] = vec
	}
	if failed > 0 {
		logger.Info("embedding batch finished with failures",
			zap.Int("total", len(texts)), zap.Int("failed", failed))
	}
	return out
}

// cacheKey scopes a text to the model that embedded it.
func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// cached looks a key up in the LRU and then the persistent store, promoting store hits.
func cached(ctx context.Context, o *options, lru *EmbeddingCache, key string, dims int) ([]float32, bool) {
	if lru != nil {
		if v, ok := lru.Get(key); ok {
			return v, true
		}
	}
	if o.store == nil {
		return nil, false
	}
	v, ok, err := o.store.Get(ctx, key)
	if err != nil {
		o.logger.Debug("embedding store lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok || len(v) != dims {
		return nil, false
	}
	if lru != nil {
		lru.Set(key, v)
	}
	return v, true
}

// remember writes a fresh embedding to both cache layers.
func remember(ctx context.Context, o *options, lru *EmbeddingCache, key, model string, v []float32) {
	if lru != nil {
		lru.Set(key, v)
	}
	if o.store == nil {
		return
	}
	if err := o.store.Put(ctx, key, model, v); err != nil {
		o.logger.Warn("embedding store write failed", zap.Error(err))
	}
}
