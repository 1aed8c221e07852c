// Package catalog loads the restaurant catalog from JSON, either fully into a cached slice or
// incrementally with constant memory.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/menurag/internal/models"
	"go.uber.org/zap"
)

// Mode selects how a source is parsed.
type Mode int

const (
	// ModeFull parses the whole source and caches it.
	ModeFull Mode = iota
	// ModeStream decodes one record at a time and stops once the requested page is filled.
	ModeStream
)

// DefaultBatchSize is the number of records per batch when Batches is called with size <= 0.
const DefaultBatchSize = 100

// Loader reads catalogs from a data directory. It keeps a single cache slot holding the last
// source loaded in full mode; loading a different source in full mode replaces it.
type Loader struct {
	dataDir string
	logger  *zap.Logger

	mu       sync.Mutex
	cacheKey string
	cache    []models.Restaurant
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader creates a loader resolving relative source names against dataDir.
func NewLoader(dataDir string, opts ...LoaderOption) *Loader {
	l := &Loader{dataDir: dataDir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path resolves a source name to a file path.
func (l *Loader) Path(source string) string {
	if filepath.IsAbs(source) || l.dataDir == "" {
		return source
	}
	return filepath.Join(l.dataDir, source)
}

// Load returns the records of source inside page. Missing or malformed sources are logged and
// yield an empty slice; Load never fails.
func (l *Loader) Load(source string, mode Mode, page models.CatalogPage) []models.Restaurant {
	if mode == ModeStream {
		return l.loadStream(source, page)
	}
	return l.loadFull(source, page)
}

// LoadAll is Load over the whole source.
func (l *Loader) LoadAll(source string, mode Mode) []models.Restaurant {
	return l.Load(source, mode, models.CatalogPage{})
}

// Count returns the number of records in source. It uses the cache when it holds source,
// otherwise it counts with a streaming pass that does not decode records.
func (l *Loader) Count(source string) int {
	l.mu.Lock()
	if l.cacheKey == source && l.cache != nil {
		n := len(l.cache)
		l.mu.Unlock()
		return n
	}
	l.mu.Unlock()

	path := l.Path(source)
	if !l.exists(path) {
		return 0
	}
	n, err := countRecords(path)
	if err != nil {
		l.logger.Warn("streaming count failed, falling back to full load",
			zap.String("path", path), zap.Error(err))
		return len(l.loadFull(source, models.CatalogPage{}))
	}
	return n
}

// Cached reports whether source currently occupies the cache slot.
func (l *Loader) Cached(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cacheKey == source && l.cache != nil
}

// Invalidate empties the cache slot.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cacheKey = ""
	l.cache = nil
}

func (l *Loader) loadFull(source string, page models.CatalogPage) []models.Restaurant {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cacheKey != source || l.cache == nil {
		path := l.Path(source)
		if !l.exists(path) {
			return []models.Restaurant{}
		}
		records, err := parseFile(l.logger, path)
		if err != nil {
			l.logParseError(path, err)
			return []models.Restaurant{}
		}
		l.cacheKey = source
		l.cache = records
		l.logger.Debug("catalog loaded", zap.String("source", source), zap.Int("records", len(records)))
	}

	lo, hi := page.Bounds(len(l.cache))
	out := make([]models.Restaurant, hi-lo)
	copy(out, l.cache[lo:hi])
	return out
}

func (l *Loader) loadStream(source string, page models.CatalogPage) []models.Restaurant {
	path := l.Path(source)
	if !l.exists(path) {
		return []models.Restaurant{}
	}
	records, err := streamWindow(l.logger, path, page)
	if err != nil {
		l.logger.Warn("streaming parse failed, falling back to full load",
			zap.String("path", path), zap.Error(err))
		return l.loadFull(source, page)
	}
	return records
}

// exists logs the attempted path and the files next to it when path is missing.
func (l *Loader) exists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	} else if !errors.Is(err, os.ErrNotExist) {
		l.logger.Error("catalog source not readable", zap.String("path", path), zap.Error(err))
		return false
	}
	dir := filepath.Dir(path)
	fields := []zap.Field{zap.String("path", path), zap.String("dir", dir)}
	if entries, err := os.ReadDir(dir); err == nil {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		fields = append(fields, zap.Strings("available", names))
	} else {
		fields = append(fields, zap.NamedError("list_error", err))
	}
	l.logger.Error("catalog source not found", fields...)
	return false
}

func (l *Loader) logParseError(path string, err error) {
	fields := []zap.Field{zap.String("path", path), zap.Error(err)}
	if offset, ok := errorOffset(err); ok {
		if line, col, perr := position(path, offset); perr == nil {
			fields = append(fields, zap.Int("line", line), zap.Int("column", col))
		}
	}
	l.logger.Error("catalog source is malformed", fields...)
}

func parseFile(logger *zap.Logger, path string) ([]models.Restaurant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]models.Restaurant, 0, len(raw))
	for _, r := range raw {
		if bytes.Equal(bytes.TrimSpace(r), nullLiteral) {
			continue
		}
		rec, err := decodeRecord(logger, path, len(out), r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
