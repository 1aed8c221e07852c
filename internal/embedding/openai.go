package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/menurag/internal/config"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// embeddingsClient is the part of *openai.Client the embedder uses.
type embeddingsClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder embeds one text per request through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     embeddingsClient
	model      openai.EmbeddingModel
	dimensions int
	limiter    *rate.Limiter
	cache      *EmbeddingCache
	opts       *options
}

// NewOpenAIEmbedder creates an embedder for model. An empty apiKey is a configuration error.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, opts ...Option) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, &config.ConfigurationError{Key: "OPENAI_API_KEY"}
	}
	o := newOptions(opts)
	clientCfg := openai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		clientCfg.BaseURL = o.baseURL
	}
	return newOpenAIEmbedder(openai.NewClientWithConfig(clientCfg), model, dimensions, o), nil
}

func newOpenAIEmbedder(client embeddingsClient, model string, dimensions int, o *options) *OpenAIEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	e := &OpenAIEmbedder{
		client:     client,
		model:      openai.EmbeddingModel(model),
		dimensions: dimensions,
		cache:      NewEmbeddingCache(o.cacheSize),
		opts:       o,
	}
	if o.rps > 0 {
		burst := o.burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(o.rps), burst)
	}
	return e
}

// Embed returns the embedding for text. The response must have the configured dimension.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(string(e.model), text)
	if v, ok := cached(ctx, e.opts, e.cache, key, e.dimensions); ok {
		return v, nil
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(vec), e.dimensions)
	}
	remember(ctx, e.opts, e.cache, key, string(e.model), vec)
	return vec, nil
}

// EmbedBatch embeds each text independently; failures become zero vectors.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.opts.logger.Debug("embedding batch", zap.Int("texts", len(texts)), zap.String("model", string(e.model)))
	return embedEach(ctx, e.Embed, texts, e.dimensions, e.opts.logger), nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the persistent store when one is attached.
func (e *OpenAIEmbedder) Close() error {
	if e.opts.store != nil {
		return e.opts.store.Close()
	}
	return nil
}
