package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/menurag/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeCatalog(t *testing.T, dir, name string, n int) {
	t.Helper()
	records := make([]map[string]interface{}, n)
	for i := range records {
		records[i] = map[string]interface{}{
			"id":      i + 1,
			"name":    fmt.Sprintf("Restaurant %d", i+1),
			"address": fmt.Sprintf("%d Nguyen Hue", i+1),
			"items": []interface{}{
				map[string]interface{}{"name": "Pho", "price": 30000 + i},
				nil,
			},
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	writeRaw(t, dir, name, string(data))
}

func writeRaw(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func names(rs []models.Restaurant) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func TestLoader_FullPagination(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "c.json", 10)
	l := NewLoader(dir)

	a := l.Load("c.json", ModeFull, models.CatalogPage{Start: 2, Limit: 3})
	b := l.Load("c.json", ModeFull, models.CatalogPage{Start: 5, Limit: 4})
	whole := l.Load("c.json", ModeFull, models.CatalogPage{Start: 2, Limit: 7})
	if got := append(names(a), names(b)...); !reflect.DeepEqual(got, names(whole)) {
		t.Errorf("adjacent pages %v do not cover %v", got, names(whole))
	}
	if a[0].ID != "3" || len(a[0].Items) != 1 {
		t.Errorf("unexpected first record: %+v", a[0])
	}

	tail := l.Load("c.json", ModeFull, models.CatalogPage{Start: 8})
	if len(tail) != 2 {
		t.Errorf("unset limit should run to the end, got %d records", len(tail))
	}
}

func TestLoader_FullCacheReusedUntilSourceChanges(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "a.json", 3)
	writeCatalog(t, dir, "b.json", 5)
	l := NewLoader(dir)

	if got := len(l.LoadAll("a.json", ModeFull)); got != 3 {
		t.Fatalf("first load: %d records", got)
	}
	// Rewriting the file must not be observed while the cache holds a.json.
	writeCatalog(t, dir, "a.json", 7)
	if got := len(l.LoadAll("a.json", ModeFull)); got != 3 {
		t.Errorf("cached load: got %d records, want 3", got)
	}
	if !l.Cached("a.json") {
		t.Error("a.json should be cached")
	}

	if got := len(l.LoadAll("b.json", ModeFull)); got != 5 {
		t.Errorf("b.json: got %d records", got)
	}
	if l.Cached("a.json") || !l.Cached("b.json") {
		t.Error("loading b.json should replace the cache slot")
	}

	if got := len(l.LoadAll("a.json", ModeFull)); got != 7 {
		t.Errorf("reparsed a.json: got %d records, want 7", got)
	}
	l.Invalidate()
	if l.Cached("a.json") {
		t.Error("Invalidate should clear the cache")
	}
}

func TestLoader_ReturnedSliceIsACopy(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "c.json", 2)
	l := NewLoader(dir)
	got := l.LoadAll("c.json", ModeFull)
	got[0].Name = "mutated"
	if again := l.LoadAll("c.json", ModeFull); again[0].Name == "mutated" {
		t.Error("callers must not be able to mutate the cache")
	}
}

func TestLoader_StreamMatchesFull(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "c.json", 12)
	l := NewLoader(dir)
	for _, page := range []models.CatalogPage{{}, {Start: 0, Limit: 5}, {Start: 4, Limit: 3}, {Start: 10, Limit: 10}, {Start: 20}} {
		stream := l.Load("c.json", ModeStream, page)
		full := l.Load("c.json", ModeFull, page)
		if !reflect.DeepEqual(stream, full) {
			t.Errorf("page %+v: stream %v != full %v", page, names(stream), names(full))
		}
	}
}

func TestLoader_StreamStopsAtEndOfWindow(t *testing.T) {
	dir := t.TempDir()
	// Garbage after the second record: a streaming load of the first two must not reach it.
	writeRaw(t, dir, "c.json", `[
  {"id": 1, "name": "A", "address": "x", "items": []},
  {"id": 2, "name": "B", "address": "y", "items": []},
  {"id": 3, "name": oops}
]`)
	core, logs := observer.New(zap.DebugLevel)
	l := NewLoader(dir, WithLogger(zap.New(core)))

	got := l.Load("c.json", ModeStream, models.CatalogPage{Start: 0, Limit: 2})
	if !reflect.DeepEqual(names(got), []string{"A", "B"}) {
		t.Errorf("got %v", names(got))
	}
	if logs.FilterMessage("streaming parse failed, falling back to full load").Len() != 0 {
		t.Error("no fallback expected when the window ends before the bad record")
	}
}

func TestLoader_StreamFallsBackToFullOnParseError(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "c.json", "[\n  {\"id\": 1, \"name\": \"A\"},\n  {\"id\": 2, \"name\": }\n]")
	core, logs := observer.New(zap.DebugLevel)
	l := NewLoader(dir, WithLogger(zap.New(core)))

	got := l.Load("c.json", ModeStream, models.CatalogPage{})
	if len(got) != 0 {
		t.Errorf("malformed source should degrade to empty, got %v", names(got))
	}
	if logs.FilterMessage("streaming parse failed, falling back to full load").Len() != 1 {
		t.Error("expected a fallback log entry")
	}
	malformed := logs.FilterMessage("catalog source is malformed").All()
	if len(malformed) != 1 {
		t.Fatalf("expected one malformed log entry, got %d", len(malformed))
	}
	fields := malformed[0].ContextMap()
	if fields["line"] != int64(3) {
		t.Errorf("line = %v, want 3", fields["line"])
	}
	if _, ok := fields["column"]; !ok {
		t.Error("column should be logged")
	}
}

func TestLoader_MissingSourceListsSiblings(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "present.json", 1)
	core, logs := observer.New(zap.DebugLevel)
	l := NewLoader(dir, WithLogger(zap.New(core)))

	for _, mode := range []Mode{ModeFull, ModeStream} {
		if got := l.LoadAll("absent.json", mode); got == nil || len(got) != 0 {
			t.Errorf("mode %d: want empty non-nil slice, got %v", mode, got)
		}
	}
	entries := logs.FilterMessage("catalog source not found").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 not-found log entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != filepath.Join(dir, "absent.json") {
		t.Errorf("path field = %v", fields["path"])
	}
	available, _ := fields["available"].([]interface{})
	if len(available) != 1 || available[0] != "present.json" {
		t.Errorf("available = %v", fields["available"])
	}
}

func TestLoader_NullRecordsSkipped(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "c.json", `[null, {"id": 1, "name": "A"}, null, {"id": "x", "name": "B"}]`)
	l := NewLoader(dir)
	for _, mode := range []Mode{ModeFull, ModeStream} {
		got := l.LoadAll("c.json", mode)
		if !reflect.DeepEqual(names(got), []string{"A", "B"}) {
			t.Errorf("mode %d: got %v", mode, names(got))
		}
	}
	if n := l.Count("c.json"); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestLoader_UnparseablePriceKeepsCatalog(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "c.json", `[
  {"id": 1, "name": "A", "address": "x", "items": [{"name": "Pho", "price": 30000}]},
  {"id": 2, "name": "B", "address": "y", "items": [{"name": "Lau", "price": "Liên hệ"}]},
  {"id": {"k": 1}, "name": "C", "address": "z", "items": []}
]`)
	core, logs := observer.New(zap.DebugLevel)
	l := NewLoader(dir, WithLogger(zap.New(core)))

	for _, mode := range []Mode{ModeFull, ModeStream} {
		got := l.LoadAll("c.json", mode)
		if !reflect.DeepEqual(names(got), []string{"A", "B", "C"}) {
			t.Fatalf("mode %d: got %v", mode, names(got))
		}
		if got[1].Items[0].Name != "Lau" || got[1].Items[0].Price != 0 {
			t.Errorf("mode %d: coerced item = %+v", mode, got[1].Items[0])
		}
		if got[2].ID != "" {
			t.Errorf("mode %d: unsupported id = %q, want empty", mode, got[2].ID)
		}
	}
	if n := l.Count("c.json"); n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	coerced := logs.FilterMessage("catalog record value coerced").All()
	if len(coerced) != 4 {
		t.Fatalf("expected 4 coercion warnings (2 per decoding mode), got %d", len(coerced))
	}
	if coerced[0].ContextMap()["restaurant"] != "B" {
		t.Errorf("first warning = %v", coerced[0].ContextMap())
	}
	if logs.FilterMessage("catalog source is malformed").Len() != 0 {
		t.Error("coerced values must not be reported as a malformed source")
	}

	br := l.Batches("c.json", 10)
	defer br.Close()
	batch, err := br.Next()
	if err != nil || len(batch) != 3 {
		t.Errorf("batch = %v, err = %v", names(batch), err)
	}
}

func TestLoader_NotAnArray(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "c.json", `{"id": 1}`)
	l := NewLoader(dir)
	if got := l.LoadAll("c.json", ModeStream); len(got) != 0 {
		t.Errorf("object source should yield nothing, got %v", got)
	}
}

func TestLoader_Count(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "c.json", 42)
	l := NewLoader(dir)
	if n := l.Count("c.json"); n != 42 {
		t.Errorf("streaming Count = %d, want 42", n)
	}
	if l.Cached("c.json") {
		t.Error("streaming count must not populate the cache")
	}
	l.LoadAll("c.json", ModeFull)
	writeCatalog(t, dir, "c.json", 3)
	if n := l.Count("c.json"); n != 42 {
		t.Errorf("cached Count = %d, want 42", n)
	}
	if n := l.Count("missing.json"); n != 0 {
		t.Errorf("missing Count = %d, want 0", n)
	}
}

func TestLoader_BatchesCoverStream(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "c.json", 250)
	l := NewLoader(dir)

	br := l.Batches("c.json", 0)
	defer br.Close()
	var sizes []int
	var all []models.Restaurant
	for {
		batch, err := br.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		sizes = append(sizes, len(batch))
		all = append(all, batch...)
	}
	if !reflect.DeepEqual(sizes, []int{100, 100, 50}) {
		t.Errorf("batch sizes = %v, want [100 100 50]", sizes)
	}
	if !reflect.DeepEqual(all, l.LoadAll("c.json", ModeStream)) {
		t.Error("concatenated batches differ from the streaming load")
	}
	if _, err := br.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("exhausted reader should keep returning io.EOF, got %v", err)
	}
}

func TestLoader_BatchesStopOnParseError(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "c.json", `[{"id": 1, "name": "A"}, {"id": 2, "name": "B"}, {bad}]`)
	l := NewLoader(dir)
	br := l.Batches("c.json", 10)
	defer br.Close()

	batch, err := br.Next()
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if !reflect.DeepEqual(names(batch), []string{"A", "B"}) {
		t.Errorf("records before the error = %v", names(batch))
	}
	if br.Err() == nil {
		t.Error("Err should report the parse error")
	}
	if _, err := br.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("stream should be over, got %v", err)
	}
}

func TestLoader_BatchesMissingSource(t *testing.T) {
	l := NewLoader(t.TempDir())
	br := l.Batches("missing.json", 5)
	if _, err := br.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("missing source should be empty, got %v", err)
	}
	if err := br.Close(); err != nil {
		t.Error(err)
	}
}

func TestLoader_AbsolutePath(t *testing.T) {
	dir := t.TempDir()
	writeCatalog(t, dir, "c.json", 2)
	l := NewLoader("/nonexistent")
	if got := l.LoadAll(filepath.Join(dir, "c.json"), ModeFull); len(got) != 2 {
		t.Errorf("absolute source: got %d records", len(got))
	}
	if p := l.Path("rel.json"); !strings.HasPrefix(p, "/nonexistent") {
		t.Errorf("Path = %s", p)
	}
}
