// Package answer turns retrieved restaurants and menu items into a prompt and asks a language
// model to answer with it.
package answer

import (
	"context"
	"strings"

	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Searcher is the retrieval surface the composer needs.
type Searcher interface {
	SearchRestaurants(ctx context.Context, query string, topK int) []models.RestaurantResult
	SearchMenuItems(ctx context.Context, query string, topK int) []models.MenuItemResult
}

// Composer retrieves context for a question and asks a Generator to answer it.
type Composer struct {
	searcher       Searcher
	generator      Generator
	restaurantTopK int
	itemTopK       int
	logger         *zap.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithTopK sets how many restaurants and menu items go into the context block.
func WithTopK(restaurants, items int) Option {
	return func(c *Composer) {
		if restaurants > 0 {
			c.restaurantTopK = restaurants
		}
		if items > 0 {
			c.itemTopK = items
		}
	}
}

// WithLogger sets the composer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Composer) { c.logger = utils.OrNop(l) }
}

// NewComposer creates a composer that includes 3 restaurants and 5 menu items by default.
func NewComposer(searcher Searcher, generator Generator, opts ...Option) *Composer {
	c := &Composer{
		searcher:       searcher,
		generator:      generator,
		restaurantTopK: 3,
		itemTopK:       5,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Answer retrieves context for question and returns the generated answer. It never fails: a
// generation error yields Apology.
func (c *Composer) Answer(ctx context.Context, question string) string {
	ctx, span := otel.Tracer("github.com/hyperjump/menurag/internal/answer").Start(ctx, "answer.Answer")
	defer span.End()

	restaurants := c.searcher.SearchRestaurants(ctx, question, c.restaurantTopK)
	items := c.searcher.SearchMenuItems(ctx, question, c.itemTopK)
	block := BuildContext(restaurants, items)
	span.SetAttributes(
		attribute.Int("restaurants", len(restaurants)),
		attribute.Int("menu_items", len(items)),
		attribute.Int("context_bytes", len(block)))

	text, err := c.generator.Complete(ctx, SystemPrompt, UserPrompt(block, question))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("answer generation failed",
			zap.String("question", utils.Truncate(question, 80)), zap.Error(err))
		return Apology
	}
	return text
}
