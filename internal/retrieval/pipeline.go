// Package retrieval ranks restaurants and menu items for a free-text query.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/menurag/internal/embedding"
	"github.com/hyperjump/menurag/internal/keyword"
	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/internal/vector"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/hyperjump/menurag/internal/retrieval"

// ItemStrategy decides how menu items are scored.
type ItemStrategy string

const (
	// StrategyPerItem embeds every menu item and ranks items by their own similarity.
	StrategyPerItem ItemStrategy = "per_item"
	// StrategyInherited over-fetches restaurants and gives each of their items the restaurant's
	// score. Items are not indexed separately in an external collection, so this is an
	// approximation of item-level similarity.
	StrategyInherited ItemStrategy = "inherited"
)

// StrategyFor returns the item strategy matching an index type.
func StrategyFor(indexType string) ItemStrategy {
	if vector.IndexType(indexType) == vector.IndexTypeQdrant {
		return StrategyInherited
	}
	return StrategyPerItem
}

// Options configures a Pipeline.
type Options struct {
	Strategy        ItemStrategy
	OverFetchFactor int
	// LexicalFallback ranks with the lexical index when the query embeds to the zero vector.
	// Lexical scores are bleve relevance scores, not cosine similarities, so they are not
	// bounded to [-1, 1]. When the lexical index matches nothing, the zero vector is searched
	// as usual and every score is 0.
	LexicalFallback bool
	Logger          *zap.Logger
}

// itemRef locates a menu item in the catalog snapshot.
type itemRef struct {
	restaurant int
	item       int
}

// Pipeline answers restaurant and menu-item searches over one catalog snapshot.
type Pipeline struct {
	embedder embedding.Embedder
	index    vector.SimilarityIndex
	lexical  keyword.Index
	opts     Options
	logger   *zap.Logger
	tracer   trace.Tracer

	mu          sync.RWMutex
	generation  uint64 // bumped by every Rebuild and Restore
	restaurants []models.Restaurant
	items       []itemRef
	itemVectors [][]float32 // nil until the first per-item search after a rebuild
	itemsMu     sync.Mutex
}

// itemAttempts bounds how often a per-item search re-embeds when rebuilds keep landing mid-search.
const itemAttempts = 3

// NewPipeline wires a pipeline. lexical may be nil.
func NewPipeline(embedder embedding.Embedder, index vector.SimilarityIndex, lexical keyword.Index, opts Options) *Pipeline {
	if opts.Strategy == "" {
		opts.Strategy = StrategyPerItem
	}
	if opts.OverFetchFactor <= 0 {
		opts.OverFetchFactor = 3
	}
	return &Pipeline{
		embedder: embedder,
		index:    index,
		lexical:  lexical,
		opts:     opts,
		logger:   utils.OrNop(opts.Logger),
		tracer:   otel.Tracer(tracerName),
	}
}

// Rebuild embeds every restaurant, rebuilds the similarity and lexical indexes, and drops the
// per-item embeddings so they are rebuilt lazily for the new catalog.
func (p *Pipeline) Rebuild(ctx context.Context, restaurants []models.Restaurant) error {
	ctx, span := p.tracer.Start(ctx, "retrieval.Rebuild", trace.WithAttributes(
		attribute.Int("restaurants", len(restaurants))))
	defer span.End()

	texts := make([]string, len(restaurants))
	for i := range restaurants {
		texts[i] = restaurants[i].Text()
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return p.fail(span, fmt.Errorf("embed restaurants: %w", err))
	}
	if err := p.index.Build(ctx, restaurants, vectors); err != nil {
		return p.fail(span, fmt.Errorf("build similarity index: %w", err))
	}
	if err := p.restore(ctx, restaurants); err != nil {
		return p.fail(span, err)
	}
	return nil
}

// Restore adopts restaurants as the catalog snapshot of an already built similarity index, such
// as one loaded from disk. Only the lexical index and the menu item state are rebuilt.
func (p *Pipeline) Restore(ctx context.Context, restaurants []models.Restaurant) error {
	ctx, span := p.tracer.Start(ctx, "retrieval.Restore", trace.WithAttributes(
		attribute.Int("restaurants", len(restaurants))))
	defer span.End()
	if err := p.restore(ctx, restaurants); err != nil {
		return p.fail(span, err)
	}
	return nil
}

func (p *Pipeline) restore(ctx context.Context, restaurants []models.Restaurant) error {
	if p.lexical != nil {
		if err := p.lexical.Build(ctx, restaurants); err != nil {
			return fmt.Errorf("build lexical index: %w", err)
		}
	}

	snapshot := make([]models.Restaurant, len(restaurants))
	var items []itemRef
	for i := range restaurants {
		snapshot[i] = restaurants[i].Clone()
		for j := range restaurants[i].Items {
			items = append(items, itemRef{restaurant: i, item: j})
		}
	}
	p.mu.Lock()
	p.generation++
	p.restaurants = snapshot
	p.items = items
	p.itemVectors = nil
	p.mu.Unlock()

	p.logger.Info("retrieval index rebuilt",
		zap.Int("restaurants", len(restaurants)),
		zap.Int("menu_items", len(items)))
	return nil
}

// Size returns the number of restaurants in the similarity index.
func (p *Pipeline) Size() int {
	return p.index.Size()
}

// SearchRestaurants returns up to topK restaurants most similar to query, best first.
// Backend failures degrade to an empty list.
func (p *Pipeline) SearchRestaurants(ctx context.Context, query string, topK int) []models.RestaurantResult {
	ctx, span := p.tracer.Start(ctx, "retrieval.SearchRestaurants", trace.WithAttributes(
		attribute.Int("top_k", topK)))
	defer span.End()

	out := []models.RestaurantResult{}
	if topK <= 0 {
		return out
	}
	qv := p.embedQuery(ctx, query)
	if p.useLexical(qv) {
		if lex := p.lexicalRestaurants(ctx, query, topK); len(lex) > 0 {
			span.SetAttributes(attribute.Bool("lexical", true))
			return lex
		}
	}
	hits, err := p.index.Search(ctx, qv, topK)
	if err != nil {
		p.logger.Error("restaurant search failed", zap.Error(err))
		span.RecordError(err)
		return out
	}
	for _, h := range hits {
		out = append(out, models.RestaurantResult{Restaurant: h.Restaurant, Score: h.Score})
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out
}

// SearchMenuItems returns up to topK menu items for query, best first. Items with equal scores
// keep catalog order.
func (p *Pipeline) SearchMenuItems(ctx context.Context, query string, topK int) []models.MenuItemResult {
	ctx, span := p.tracer.Start(ctx, "retrieval.SearchMenuItems", trace.WithAttributes(
		attribute.Int("top_k", topK),
		attribute.String("strategy", string(p.opts.Strategy))))
	defer span.End()

	out := []models.MenuItemResult{}
	if topK <= 0 {
		return out
	}
	qv := p.embedQuery(ctx, query)
	if p.useLexical(qv) {
		if lex := p.lexicalItems(ctx, query, topK); len(lex) > 0 {
			span.SetAttributes(attribute.Bool("lexical", true))
			return lex
		}
	}
	var err error
	switch p.opts.Strategy {
	case StrategyInherited:
		out, err = p.inheritedItems(ctx, qv, topK)
	default:
		out, err = p.perItemItems(ctx, qv, topK)
	}
	if err != nil {
		p.logger.Error("menu item search failed", zap.Error(err))
		span.RecordError(err)
		return []models.MenuItemResult{}
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out
}

// inheritedItems over-fetches restaurants and flattens their items with the restaurant score.
func (p *Pipeline) inheritedItems(ctx context.Context, qv []float32, topK int) ([]models.MenuItemResult, error) {
	hits, err := p.index.Search(ctx, qv, topK*p.opts.OverFetchFactor)
	if err != nil {
		return nil, err
	}
	var out []models.MenuItemResult
	for _, h := range hits {
		for _, it := range h.Restaurant.Items {
			out = append(out, models.MenuItemResult{
				RestaurantID:   h.Restaurant.ID,
				RestaurantName: h.Restaurant.Name,
				Item:           it,
				Score:          h.Score,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	p.logger.Debug("menu item scores inherited from restaurants",
		zap.Int("restaurants", len(hits)), zap.Int("items", len(out)))
	if out == nil {
		out = []models.MenuItemResult{}
	}
	return out, nil
}

// perItemItems ranks every menu item by its own embedding.
func (p *Pipeline) perItemItems(ctx context.Context, qv []float32, topK int) ([]models.MenuItemResult, error) {
	for attempt := 0; attempt < itemAttempts; attempt++ {
		vectors, gen, err := p.itemEmbeddings(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.RLock()
		if gen != p.generation {
			p.mu.RUnlock()
			p.logger.Debug("catalog rebuilt during menu item search, retrying", zap.Int("attempt", attempt+1))
			continue
		}
		if len(vectors) != len(p.items) {
			p.mu.RUnlock()
			return nil, fmt.Errorf("embed menu items: got %d vectors for %d items", len(vectors), len(p.items))
		}
		ranked := vector.TopK(qv, vectors, topK)
		out := make([]models.MenuItemResult, 0, len(ranked))
		for _, r := range ranked {
			out = append(out, p.itemResult(p.items[r.Index], r.Score))
		}
		p.mu.RUnlock()
		return out, nil
	}
	return []models.MenuItemResult{}, nil
}

// itemEmbeddings returns one embedding per menu item of the current snapshot together with that
// snapshot's generation, computing them once per snapshot. Vectors embedded for a snapshot that
// was replaced meanwhile are returned with the old generation and never cached.
func (p *Pipeline) itemEmbeddings(ctx context.Context) ([][]float32, uint64, error) {
	p.itemsMu.Lock()
	defer p.itemsMu.Unlock()

	p.mu.RLock()
	gen := p.generation
	vectors := p.itemVectors
	texts := make([]string, len(p.items))
	for i, ref := range p.items {
		texts[i] = p.restaurants[ref.restaurant].Items[ref.item].Text()
	}
	p.mu.RUnlock()
	if vectors != nil {
		return vectors, gen, nil
	}

	ctx, span := p.tracer.Start(ctx, "retrieval.embedMenuItems", trace.WithAttributes(
		attribute.Int("menu_items", len(texts))))
	defer span.End()
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, gen, fmt.Errorf("embed menu items: %w", err)
	}
	p.mu.Lock()
	if p.generation == gen {
		p.itemVectors = vectors
	}
	p.mu.Unlock()
	p.logger.Debug("menu item embeddings built", zap.Int("menu_items", len(vectors)))
	return vectors, gen, nil
}

func (p *Pipeline) itemResult(ref itemRef, score float64) models.MenuItemResult {
	r := p.restaurants[ref.restaurant]
	return models.MenuItemResult{
		RestaurantID:   r.ID,
		RestaurantName: r.Name,
		Item:           r.Items[ref.item],
		Score:          score,
	}
}

// embedQuery embeds query; a failure yields the zero vector.
func (p *Pipeline) embedQuery(ctx context.Context, query string) []float32 {
	qv, err := p.embedder.Embed(ctx, query)
	if err != nil {
		p.logger.Warn("query embedding failed, using zero vector",
			zap.String("query", utils.Truncate(query, 60)), zap.Error(err))
		return embedding.ZeroVector(p.embedder.Dimensions())
	}
	return qv
}

func (p *Pipeline) useLexical(qv []float32) bool {
	return p.opts.LexicalFallback && p.lexical != nil && utils.IsZeroVector(qv)
}

func (p *Pipeline) lexicalRestaurants(ctx context.Context, query string, topK int) []models.RestaurantResult {
	out := []models.RestaurantResult{}
	results, err := p.lexical.SearchRestaurants(ctx, query, topK, keyword.DefaultSearchOptions())
	if err != nil {
		p.logger.Error("lexical restaurant search failed", zap.Error(err))
		return out
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range results {
		if r.Restaurant < 0 || r.Restaurant >= len(p.restaurants) {
			continue
		}
		out = append(out, models.RestaurantResult{Restaurant: p.restaurants[r.Restaurant].Clone(), Score: r.Score})
	}
	return out
}

func (p *Pipeline) lexicalItems(ctx context.Context, query string, topK int) []models.MenuItemResult {
	out := []models.MenuItemResult{}
	results, err := p.lexical.SearchItems(ctx, query, topK, keyword.DefaultSearchOptions())
	if err != nil {
		p.logger.Error("lexical menu item search failed", zap.Error(err))
		return out
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range results {
		if r.Restaurant < 0 || r.Restaurant >= len(p.restaurants) ||
			r.Item < 0 || r.Item >= len(p.restaurants[r.Restaurant].Items) {
			continue
		}
		out = append(out, p.itemResult(itemRef{restaurant: r.Restaurant, item: r.Item}, r.Score))
	}
	return out
}

func (p *Pipeline) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Error("retrieval rebuild failed", zap.Error(err))
	return err
}
