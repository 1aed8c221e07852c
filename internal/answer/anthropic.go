package answer

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

type messagesClient interface {
	CreateMessages(ctx context.Context, req anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// AnthropicGenerator answers through the Anthropic messages API.
type AnthropicGenerator struct {
	client    messagesClient
	model     string
	maxTokens int
}

// NewAnthropicGenerator creates a generator for model.
func NewAnthropicGenerator(apiKey, model, baseURL string, maxTokens int) *AnthropicGenerator {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicGenerator{client: anthropic.NewClient(apiKey, opts...), model: model, maxTokens: maxTokens}
}

// Complete sends the user message with the system instruction and returns the first text block.
func (g *AnthropicGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:  anthropic.Model(g.model),
		System: system,
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(user)},
			},
		},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}
	for _, c := range resp.Content {
		if c.Text != nil {
			return *c.Text, nil
		}
	}
	return "", fmt.Errorf("no response content")
}
