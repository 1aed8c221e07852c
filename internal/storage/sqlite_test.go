package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/menurag/internal/models"
)

func TestSQLiteStorage_Embeddings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}

	vec := []float32{0.5, -1.25, 0, 3}
	if err := store.Put(ctx, "m:abc", "m", vec); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.Get(ctx, "m:abc")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(got) != len(vec) {
		t.Fatalf("got %v", got)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("component %d = %v, want %v", i, got[i], vec[i])
		}
	}

	if err := store.Put(ctx, "m:abc", "m", []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	got, _, _ = store.Get(ctx, "m:abc")
	if len(got) != 2 {
		t.Errorf("Put should replace, got %v", got)
	}
	_ = store.Put(ctx, "m:def", "m", []float32{1})
	if n, err := store.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestSQLiteStorage_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "k", "m", []float32{7}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || got[0] != 7 {
		t.Errorf("after reopen: %v %v %v", got, ok, err)
	}
}

func TestSQLiteStorage_Runs(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first := &models.IngestRun{ID: "r1", Source: "a.json", StartedAt: start}
	if err := store.SaveRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.FinishedAt.IsZero() || got.Duration() != 0 {
		t.Errorf("unfinished run should have no finish time: %+v", got)
	}

	first.FinishedAt = start.Add(90 * time.Second)
	first.Batches, first.Records, first.Embedded, first.Failed = 3, 250, 249, 1
	if err := store.SaveRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.IngestRun{ID: "r2", Source: "b.json", StartedAt: start.Add(time.Hour),
		FinishedAt: start.Add(time.Hour + time.Second), Error: "boom"}
	if err := store.SaveRun(ctx, second); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r2" || runs[1].ID != "r1" {
		t.Fatalf("ListRuns order wrong: %+v", runs)
	}
	if runs[1].Records != 250 || runs[1].Failed != 1 || runs[1].Duration() != 90*time.Second {
		t.Errorf("r1 = %+v", runs[1])
	}
	if runs[0].Error != "boom" {
		t.Errorf("r2 error = %q", runs[0].Error)
	}
	if _, err := store.GetRun(ctx, "nope"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{1.5, -2, 0.125}
	got, err := decodeVector(encodeVector(vec), 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("%d: %v != %v", i, got[i], vec[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}, 1); err == nil {
		t.Error("short blob should fail")
	}
}
