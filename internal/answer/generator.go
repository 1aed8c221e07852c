package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/menurag/internal/config"
)

var errEmptyCompletion = errors.New("generator returned no text")

// Generator completes a prompt made of a system instruction and a user message.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewGenerator builds the generator selected by cfg.Provider. A missing API key is a
// configuration error.
func NewGenerator(cfg config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, &config.ConfigurationError{Key: "OPENAI_API_KEY"}
		}
		return NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, &config.ConfigurationError{Key: "ANTHROPIC_API_KEY"}
		}
		return NewAnthropicGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}
