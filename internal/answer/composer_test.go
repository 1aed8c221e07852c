package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/internal/models"
	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubSearcher struct {
	restaurants []models.RestaurantResult
	items       []models.MenuItemResult
	gotTopK     [2]int
}

func (s *stubSearcher) SearchRestaurants(_ context.Context, _ string, topK int) []models.RestaurantResult {
	s.gotTopK[0] = topK
	return s.restaurants
}

func (s *stubSearcher) SearchMenuItems(_ context.Context, _ string, topK int) []models.MenuItemResult {
	s.gotTopK[1] = topK
	return s.items
}

type stubGenerator struct {
	text         string
	err          error
	system, user string
}

func (g *stubGenerator) Complete(_ context.Context, system, user string) (string, error) {
	g.system, g.user = system, user
	return g.text, g.err
}

func sampleResults() ([]models.RestaurantResult, []models.MenuItemResult) {
	items := make([]models.MenuItem, 7)
	for i := range items {
		items[i] = models.MenuItem{Name: "Mon " + string(rune('A'+i)), Price: float64(10000 * (i + 1))}
	}
	restaurants := []models.RestaurantResult{
		{Restaurant: models.Restaurant{ID: "1", Name: "Quan Ngon", Address: "18 Phan Boi Chau", Items: items}, Score: 0.9},
		{Restaurant: models.Restaurant{ID: "2", Name: "Com Tam", Address: "1 Nguyen Trai"}, Score: 0.5},
	}
	menu := []models.MenuItemResult{
		{RestaurantID: "1", RestaurantName: "Quan Ngon", Item: models.MenuItem{Name: "Banh xeo", Price: 55000}, Score: 0.8},
	}
	return restaurants, menu
}

func TestBuildContext(t *testing.T) {
	restaurants, items := sampleResults()
	got := BuildContext(restaurants, items)
	want := "Restaurant information:\n" +
		"Restaurant: Quan Ngon\n" +
		"Address: 18 Phan Boi Chau\n" +
		"Sample menu items:\n" +
		"- Mon A - Price: 10000 VND\n" +
		"- Mon B - Price: 20000 VND\n" +
		"- Mon C - Price: 30000 VND\n" +
		"- Mon D - Price: 40000 VND\n" +
		"- Mon E - Price: 50000 VND\n" +
		"\n" +
		"Restaurant: Com Tam\n" +
		"Address: 1 Nguyen Trai\n" +
		"Sample menu items:\n" +
		"\n" +
		"Specific menu items that match your query:\n" +
		"- Banh xeo - Price: 55000 VND at Quan Ngon\n"
	assert.Equal(t, want, got)
	assert.Equal(t, got, BuildContext(restaurants, items), "context must be deterministic")
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Equal(t, "Restaurant information:\nSpecific menu items that match your query:\n", BuildContext(nil, nil))
}

func TestComposer_Answer(t *testing.T) {
	restaurants, items := sampleResults()
	searcher := &stubSearcher{restaurants: restaurants, items: items}
	gen := &stubGenerator{text: "Quán Ngon có bánh xèo giá 55000 VND."}
	c := NewComposer(searcher, gen)

	got := c.Answer(context.Background(), "Where can I eat banh xeo?")
	assert.Equal(t, "Quán Ngon có bánh xèo giá 55000 VND.", got)
	assert.Equal(t, [2]int{3, 5}, searcher.gotTopK)
	assert.Equal(t, SystemPrompt, gen.system)
	assert.True(t, strings.HasPrefix(gen.user, "Context: Restaurant information:\n"))
	assert.True(t, strings.HasSuffix(gen.user, "\n\nQuestion: Where can I eat banh xeo?\n\nAnswer:"))
	assert.Contains(t, gen.user, "- Banh xeo - Price: 55000 VND at Quan Ngon\n")
}

func TestComposer_GenerationFailureApologizes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	for _, gen := range []*stubGenerator{{err: errors.New("429 rate limited")}, {text: "   "}} {
		c := NewComposer(&stubSearcher{}, gen, WithLogger(zap.New(core)), WithTopK(2, 3))
		assert.Equal(t, Apology, c.Answer(context.Background(), "pho?"))
	}
	assert.Equal(t, 2, logs.FilterMessage("answer generation failed").Len())
}

type fakeChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestOpenAIGenerator(t *testing.T) {
	chat := &fakeChat{resp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Xin chào"}},
	}}}
	g := &OpenAIGenerator{client: chat, model: "gpt-4-turbo-preview", maxTokens: 100}

	got, err := g.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "Xin chào", got)
	require.Len(t, chat.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, chat.req.Messages[0].Role)
	assert.Equal(t, "sys", chat.req.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, chat.req.Messages[1].Role)
	assert.Equal(t, "gpt-4-turbo-preview", chat.req.Model)

	chat.resp = openai.ChatCompletionResponse{}
	_, err = g.Complete(context.Background(), "sys", "user")
	assert.Error(t, err)

	chat.err = errors.New("boom")
	_, err = g.Complete(context.Background(), "sys", "user")
	assert.ErrorContains(t, err, "boom")
}

type fakeMessages struct {
	req  anthropic.MessagesRequest
	resp anthropic.MessagesResponse
	err  error
}

func (f *fakeMessages) CreateMessages(_ context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestAnthropicGenerator(t *testing.T) {
	text := "Phở ngon nhất ở Phở Thìn."
	msgs := &fakeMessages{resp: anthropic.MessagesResponse{Content: []anthropic.MessageContent{
		anthropic.NewTextMessageContent(text),
	}}}
	g := &AnthropicGenerator{client: msgs, model: "claude-3-5-sonnet-20241022", maxTokens: 512}

	got, err := g.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, text, got)
	assert.Equal(t, "sys", msgs.req.System)
	assert.Equal(t, 512, msgs.req.MaxTokens)
	require.Len(t, msgs.req.Messages, 1)
	assert.Equal(t, anthropic.RoleUser, msgs.req.Messages[0].Role)

	msgs.resp = anthropic.MessagesResponse{}
	_, err = g.Complete(context.Background(), "sys", "user")
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(config.GenerationConfig{Provider: "openai"})
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "OPENAI_API_KEY", cfgErr.Key)

	_, err = NewGenerator(config.GenerationConfig{Provider: "anthropic"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfgErr.Key)

	g, err := NewGenerator(config.GenerationConfig{Provider: "anthropic", APIKey: "k", Model: "claude-3-5-sonnet-20241022"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGenerator{}, g)

	g, err = NewGenerator(config.GenerationConfig{APIKey: "k", Model: "gpt-4-turbo-preview"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	_, err = NewGenerator(config.GenerationConfig{Provider: "gemini", APIKey: "k"})
	assert.Error(t, err)
}
