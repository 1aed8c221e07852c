package keyword

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/menurag/internal/models"
)

type restaurantDoc struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Dishes  string `json:"dishes"`
}

type itemDoc struct {
	Name       string `json:"name"`
	Restaurant string `json:"restaurant"`
}

// BleveIndex keeps two in-memory Bleve indexes, one per restaurant and one per menu item. Build
// swaps both atomically.
type BleveIndex struct {
	mu          sync.RWMutex
	restaurants bleve.Index
	items       bleve.Index
}

// NewBleveIndex creates an empty in-memory lexical index.
func NewBleveIndex() (*BleveIndex, error) {
	r, i, err := newIndexes()
	if err != nil {
		return nil, err
	}
	return &BleveIndex{restaurants: r, items: i}, nil
}

func newIndexes() (bleve.Index, bleve.Index, error) {
	r, err := bleve.NewMemOnly(newMapping("name", "address", "dishes"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create restaurant index: %w", err)
	}
	i, err := bleve.NewMemOnly(newMapping("name", "restaurant"))
	if err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("failed to create menu item index: %w", err)
	}
	return r, i, nil
}

// newMapping indexes the given text fields with the standard analyzer (lowercase, no stemming);
// stemming mangles Vietnamese dish names.
func newMapping(fields ...string) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	for _, f := range fields {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		doc.AddFieldMappingsAt(f, fm)
	}
	im.DefaultMapping = doc
	return im
}

// Build indexes every restaurant and each of its menu items.
func (b *BleveIndex) Build(ctx context.Context, restaurants []models.Restaurant) error {
	r, i, err := newIndexes()
	if err != nil {
		return err
	}
	rb := r.NewBatch()
	ib := i.NewBatch()
	for pos, rest := range restaurants {
		if err := ctx.Err(); err != nil {
			_ = r.Close()
			_ = i.Close()
			return err
		}
		dishes := make([]string, len(rest.Items))
		for j, it := range rest.Items {
			dishes[j] = it.Name
			if err := ib.Index(itemID(pos, j), itemDoc{Name: it.Name, Restaurant: rest.Name}); err != nil {
				_ = r.Close()
				_ = i.Close()
				return fmt.Errorf("index menu item: %w", err)
			}
		}
		doc := restaurantDoc{Name: rest.Name, Address: rest.Address, Dishes: strings.Join(dishes, " ")}
		if err := rb.Index(strconv.Itoa(pos), doc); err != nil {
			_ = r.Close()
			_ = i.Close()
			return fmt.Errorf("index restaurant: %w", err)
		}
	}
	if err := r.Batch(rb); err != nil {
		_ = r.Close()
		_ = i.Close()
		return fmt.Errorf("commit restaurant batch: %w", err)
	}
	if err := i.Batch(ib); err != nil {
		_ = r.Close()
		_ = i.Close()
		return fmt.Errorf("commit menu item batch: %w", err)
	}

	b.mu.Lock()
	oldR, oldI := b.restaurants, b.items
	b.restaurants, b.items = r, i
	b.mu.Unlock()
	_ = oldR.Close()
	_ = oldI.Close()
	return nil
}

// SearchRestaurants ranks restaurants by name, address and dish names.
func (b *BleveIndex) SearchRestaurants(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hits, err := search(ctx, b.restaurants, buildQuery(query, opts, "name", "address", "dishes"), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Result, 0, len(hits))
	for _, h := range hits {
		pos, err := strconv.Atoi(h.id)
		if err != nil {
			continue
		}
		out = append(out, &Result{Restaurant: pos, Item: -1, Score: h.score})
	}
	return out, nil
}

// SearchItems ranks individual menu items by dish name and restaurant name.
func (b *BleveIndex) SearchItems(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hits, err := search(ctx, b.items, buildQuery(query, opts, "name", "restaurant"), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Result, 0, len(hits))
	for _, h := range hits {
		rest, item, ok := parseItemID(h.id)
		if !ok {
			continue
		}
		out = append(out, &Result{Restaurant: rest, Item: item, Score: h.score})
	}
	return out, nil
}

// DocCount returns the number of indexed restaurants.
func (b *BleveIndex) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.restaurants.DocCount()
}

// Close closes both Bleve indexes.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	errR := b.restaurants.Close()
	errI := b.items.Close()
	if errR != nil {
		return errR
	}
	return errI
}

type hit struct {
	id    string
	score float64
}

func search(ctx context.Context, idx bleve.Index, q blevequery.Query, limit int) ([]hit, error) {
	if limit <= 0 || q == nil {
		return nil, nil
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]hit, len(results.Hits))
	for i, h := range results.Hits {
		out[i] = hit{id: h.ID, score: h.Score}
	}
	// Equal scores fall back to catalog order so repeated queries rank identically.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return lessID(out[i].id, out[j].id)
	})
	return out, nil
}

// buildQuery ORs one match query per field. The first field is the name field and takes the boost.
func buildQuery(text string, opts *SearchOptions, fields ...string) blevequery.Query {
	if len(tokenizeQuery(text)) == 0 {
		return nil
	}
	if opts == nil {
		opts = DefaultSearchOptions()
	}
	fuzziness := opts.Fuzziness
	if fuzziness > 2 {
		fuzziness = 2
	}
	queries := make([]blevequery.Query, 0, len(fields))
	for i, f := range fields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(f)
		mq.Analyzer = standard.Name
		if fuzziness > 0 {
			mq.SetFuzziness(fuzziness)
		}
		if i == 0 && opts.NameBoost > 1 {
			mq.SetBoost(opts.NameBoost)
		}
		queries = append(queries, mq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func itemID(restaurant, item int) string {
	return strconv.Itoa(restaurant) + ":" + strconv.Itoa(item)
}

func parseItemID(id string) (int, int, bool) {
	r, i, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, false
	}
	rest, err1 := strconv.Atoi(r)
	item, err2 := strconv.Atoi(i)
	return rest, item, err1 == nil && err2 == nil
}

// lessID orders "3" < "12" and "3:1" < "3:10" numerically.
func lessID(a, b string) bool {
	ar, ai, aok := parseItemID(a)
	br, bi, bok := parseItemID(b)
	if !aok || !bok {
		an, _ := strconv.Atoi(a)
		bn, _ := strconv.Atoi(b)
		return an < bn
	}
	if ar != br {
		return ar < br
	}
	return ai < bi
}
