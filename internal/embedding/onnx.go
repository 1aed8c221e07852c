//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hyperjump/menurag/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// ONNXEmbedder runs a local sentence encoder through ONNX Runtime. It needs CGO and the
// onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	model      string
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	cache      *EmbeddingCache
	opts       *options

	// Bound to the session once; Embed rewrites their data in place.
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXEmbedder loads the model at modelPath. The model must take input_ids, attention_mask
// and token_type_ids of shape [1, maxTokens] and produce a pooled output of shape [1, dimensions].
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int, opts ...Option) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx embedder: model_path is required")
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	o := newOptions(opts)
	tokenizer := &HashTokenizer{}
	ids, mask, types := tokenizer.Tokenize("", maxTokens)
	maxTokens = len(ids)
	shape := ort.NewShape(1, int64(maxTokens))

	var tensors []interface{ Destroy() error }
	cleanup := func() {
		for _, t := range tensors {
			_ = t.Destroy()
		}
	}
	inputIDs, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	tensors = append(tensors, inputIDs)
	attentionMask, err := ort.NewTensor(shape, mask)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	tensors = append(tensors, attentionMask)
	tokenTypeIDs, err := ort.NewTensor(shape, types)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	tensors = append(tensors, tokenTypeIDs)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	tensors = append(tensors, output)

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{inputIDs, attentionMask, tokenTypeIDs},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	o.logger.Info("onnx embedder ready",
		zap.String("model", modelPath),
		zap.Int("dimensions", dimensions),
		zap.Int("max_tokens", maxTokens))

	return &ONNXEmbedder{
		session:       session,
		model:         "onnx/" + filepath.Base(modelPath),
		dimensions:    dimensions,
		maxTokens:     maxTokens,
		tokenizer:     tokenizer,
		cache:         NewEmbeddingCache(o.cacheSize),
		opts:          o,
		inputIDs:      inputIDs,
		attentionMask: attentionMask,
		tokenTypeIDs:  tokenTypeIDs,
		output:        output,
	}, nil
}

// Embed returns the normalized embedding of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.model, text)
	if v, ok := cached(ctx, e.opts, e.cache, key, e.dimensions); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	vec := make([]float32, e.dimensions)
	copy(vec, e.output.GetData())
	e.mu.Unlock()

	utils.NormalizeL2(vec)
	remember(ctx, e.opts, e.cache, key, e.model, vec)
	return vec, nil
}

// EmbedBatch embeds each text; inference failures become zero vectors.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e.Embed, texts, e.dimensions, e.opts.logger), nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors and closes the persistent store.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
		_ = e.attentionMask.Destroy()
		_ = e.tokenTypeIDs.Destroy()
		_ = e.output.Destroy()
		e.inputIDs, e.attentionMask, e.tokenTypeIDs, e.output = nil, nil, nil, nil
	}
	if e.opts.store != nil {
		if cerr := e.opts.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
