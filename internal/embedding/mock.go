package embedding

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperjump/menurag/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline development. Each lowercased
// word is hashed into one of the dimensions and counted, then the vector is normalized, so texts
// sharing words are similar. Text without words embeds to the zero vector.
type MockEmbedder struct {
	dimensions int
	fail       map[string]bool
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &MockEmbedder{dimensions: dimensions, fail: map[string]bool{}}
}

// FailOn makes Embed return an error for each of texts.
func (e *MockEmbedder) FailOn(texts ...string) *MockEmbedder {
	for _, t := range texts {
		e.fail[t] = true
	}
	return e
}

// Embed returns the hashed bag-of-words embedding of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.fail[text] {
		return nil, fmt.Errorf("mock embedder: refusing %q", text)
	}
	emb := make([]float32, e.dimensions)
	for _, w := range SplitWords(strings.ToLower(text)) {
		emb[HashString(w)%e.dimensions]++
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch embeds each text; texts registered with FailOn get zero vectors.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e.Embed, texts, e.dimensions, newOptions(nil).logger), nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// SplitWords splits text on anything that is not a letter or digit.
func SplitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	var h uint32
	for _, c := range s {
		h = 31*h + uint32(c)
	}
	return int(h)
}
