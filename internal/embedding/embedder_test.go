package embedding

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/internal/storage"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeEmbeddingsClient struct {
	mu    sync.Mutex
	dims  int
	fail  map[string]bool
	calls int
}

func (f *fakeEmbeddingsClient) CreateEmbeddings(_ context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	req := conv.Convert()
	text := req.Input.([]string)[0]
	if f.fail[text] {
		return openai.EmbeddingResponse{}, errors.New("upstream 500")
	}
	vec := make([]float32, f.dims)
	vec[len(text)%f.dims] = 1
	return openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: vec}}}, nil
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "text-embedding-ada-002", 1536)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "OPENAI_API_KEY", cfgErr.Key)
}

func TestOpenAIEmbedder_BatchIsolatesFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	client := &fakeEmbeddingsClient{dims: 8, fail: map[string]bool{"X": true}}
	e := newOpenAIEmbedder(client, "m", 8, newOptions([]Option{WithLogger(zap.New(core))}))

	vecs, err := e.EmbedBatch(context.Background(), []string{"Pho", "X", "Bun cha"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 8)
	}
	assert.Equal(t, ZeroVector(8), vecs[1])
	assert.NotEqual(t, ZeroVector(8), vecs[0])
	assert.Equal(t, 1, logs.FilterMessage("embedding failed, using zero vector").Len())
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	client := &fakeEmbeddingsClient{dims: 4}
	e := newOpenAIEmbedder(client, "m", 8, newOptions(nil))
	_, err := e.Embed(context.Background(), "Pho")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestOpenAIEmbedder_CachesResults(t *testing.T) {
	client := &fakeEmbeddingsClient{dims: 4}
	e := newOpenAIEmbedder(client, "m", 4, newOptions(nil))
	ctx := context.Background()

	a, err := e.Embed(ctx, "Pho")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Pho")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, client.calls)
}

func TestOpenAIEmbedder_PersistentStore(t *testing.T) {
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "emb.db"))
	require.NoError(t, err)
	ctx := context.Background()

	first := &fakeEmbeddingsClient{dims: 4}
	e := newOpenAIEmbedder(first, "m", 4, newOptions([]Option{WithStore(store), WithCacheSize(0)}))
	want, err := e.Embed(ctx, "Bun bo Hue")
	require.NoError(t, err)

	// A fresh embedder sharing the store must not call the API again.
	second := &fakeEmbeddingsClient{dims: 4}
	e2 := newOpenAIEmbedder(second, "m", 4, newOptions([]Option{WithStore(store)}))
	got, err := e2.Embed(ctx, "Bun bo Hue")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, second.calls)

	// A different model does not share entries.
	e3 := newOpenAIEmbedder(second, "other", 4, newOptions([]Option{WithStore(store)}))
	_, err = e3.Embed(ctx, "Bun bo Hue")
	require.NoError(t, err)
	assert.Equal(t, 1, second.calls)

	require.NoError(t, e.Close())
}

func TestOpenAIEmbedder_RateLimitHonoursContext(t *testing.T) {
	client := &fakeEmbeddingsClient{dims: 2}
	e := newOpenAIEmbedder(client, "m", 2, newOptions([]Option{WithRateLimit(0.001, 1), WithCacheSize(0)}))
	ctx, cancel := context.WithCancel(context.Background())
	_, err := e.Embed(ctx, "a")
	require.NoError(t, err)
	cancel()
	_, err = e.Embed(ctx, "b")
	assert.Error(t, err)
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Phở bò tái")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "phở BÒ tái")
	require.NoError(t, err)
	assert.Equal(t, a, b, "embedding should ignore case")
	assert.Len(t, a, 64)

	empty, err := e.Embed(ctx, "  -- ")
	require.NoError(t, err)
	assert.Equal(t, ZeroVector(64), empty)

	e.FailOn("X")
	vecs, err := e.EmbedBatch(ctx, []string{"X", "pho"})
	require.NoError(t, err)
	assert.Equal(t, ZeroVector(64), vecs[0])
	assert.NotEqual(t, ZeroVector(64), vecs[1])
	assert.Equal(t, 64, e.Dimensions())
}

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimensions: 16}, nil)
	require.NoError(t, err)
	assert.Equal(t, 16, e.Dimensions())

	_, err = New(config.EmbeddingConfig{Provider: "openai"}, nil)
	var cfgErr *config.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = New(config.EmbeddingConfig{Provider: "word2vec"}, nil)
	assert.ErrorContains(t, err, "unknown embedding provider")

	e, err = New(config.EmbeddingConfig{
		Provider:   "openai",
		APIKey:     "sk-test",
		Model:      "text-embedding-ada-002",
		Dimensions: 1536,
		CachePath:  filepath.Join(t.TempDir(), "cache.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())
	assert.NoError(t, e.Close())
}

func TestCacheKeyScopesModel(t *testing.T) {
	assert.NotEqual(t, cacheKey("a", "pho"), cacheKey("b", "pho"))
	assert.Equal(t, cacheKey("a", "pho"), cacheKey("a", "pho"))
}
