// Package ingest streams a restaurant catalog through the embedder into a similarity index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/menurag/internal/catalog"
	"github.com/hyperjump/menurag/internal/embedding"
	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/internal/storage"
	"github.com/hyperjump/menurag/internal/vector"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.uber.org/zap"
)

// ErrEmptyCatalog is returned when the source yields no records.
var ErrEmptyCatalog = errors.New("no restaurant data loaded")

// snapshotter is implemented by indexes that can persist themselves to a file.
type snapshotter interface {
	Save(path string) error
}

// incrementalIndex is implemented by indexes that accept a catalog one batch at a time.
type incrementalIndex interface {
	Upsert(ctx context.Context, offset int, records []models.Restaurant, vectors [][]float32) error
}

// Ingester embeds catalog records batch by batch and writes them to an index.
type Ingester struct {
	loader       *catalog.Loader
	embedder     embedding.Embedder
	index        vector.SimilarityIndex
	runs         storage.RunStore
	batchSize    int
	snapshotPath string
	logger       *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLogger sets the ingester's logger.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingester) { in.logger = utils.OrNop(l) }
}

// WithRunStore records every run, successful or not, in store.
func WithRunStore(store storage.RunStore) Option {
	return func(in *Ingester) { in.runs = store }
}

// WithBatchSize sets how many records are read and embedded at a time.
func WithBatchSize(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.batchSize = n
		}
	}
}

// WithSnapshotPath saves indexes that support it to path after a successful build.
func WithSnapshotPath(path string) Option {
	return func(in *Ingester) { in.snapshotPath = path }
}

// NewIngester creates an ingester.
func NewIngester(loader *catalog.Loader, embedder embedding.Embedder, index vector.SimilarityIndex, opts ...Option) *Ingester {
	in := &Ingester{
		loader:    loader,
		embedder:  embedder,
		index:     index,
		batchSize: catalog.DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Run ingests source and returns the run record. Indexes that accept incremental upserts receive
// each batch as soon as it is embedded, so peak memory stays at one batch; batches written
// before a parse error remain in such an index. Any other index is built once every batch has
// been read and embedded, and a parse error leaves it untouched.
func (in *Ingester) Run(ctx context.Context, source string) (*models.IngestRun, error) {
	run := &models.IngestRun{
		ID:        uuid.New().String(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	log := in.logger.With(zap.String("run_id", run.ID), zap.String("source", source))
	log.Info("ingestion started", zap.Int("batch_size", in.batchSize))

	err := in.ingest(ctx, run, log)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
		log.Error("ingestion failed", zap.Error(err))
	} else {
		log.Info("ingestion completed",
			zap.Int("records", run.Records),
			zap.Int("batches", run.Batches),
			zap.Int("failed", run.Failed),
			zap.Duration("duration", run.Duration()))
	}
	if in.runs != nil {
		// The run is recorded even when ctx was cancelled.
		if serr := in.runs.SaveRun(context.WithoutCancel(ctx), run); serr != nil {
			log.Warn("failed to record ingestion run", zap.Error(serr))
		}
	}
	return run, err
}

func (in *Ingester) ingest(ctx context.Context, run *models.IngestRun, log *zap.Logger) error {
	br := in.loader.Batches(run.Source, in.batchSize)
	defer br.Close()

	inc, streaming := in.index.(incrementalIndex)
	var records []models.Restaurant
	var vectors [][]float32
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := br.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read catalog batch %d: %w", run.Batches+1, err)
		}
		vecs, err := in.embedBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to embed batch %d: %w", run.Batches+1, err)
		}
		if streaming {
			if err := inc.Upsert(ctx, run.Records, batch, vecs); err != nil {
				return fmt.Errorf("failed to upsert batch %d: %w", run.Batches+1, err)
			}
		} else {
			records = append(records, batch...)
			vectors = append(vectors, vecs...)
		}
		run.Batches++
		run.Records += len(batch)
		for _, v := range vecs {
			if utils.IsZeroVector(v) {
				run.Failed++
			} else {
				run.Embedded++
			}
		}
		log.Debug("batch embedded", zap.Int("batch", run.Batches), zap.Int("records", len(batch)))
	}
	if err := br.Err(); err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	if run.Records == 0 {
		return ErrEmptyCatalog
	}
	if streaming {
		return nil
	}

	if err := in.index.Build(ctx, records, vectors); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if s, ok := in.index.(snapshotter); ok && in.snapshotPath != "" {
		if err := s.Save(in.snapshotPath); err != nil {
			return fmt.Errorf("failed to save index snapshot: %w", err)
		}
		log.Info("index snapshot saved", zap.String("path", in.snapshotPath))
	}
	return nil
}

func (in *Ingester) embedBatch(ctx context.Context, batch []models.Restaurant) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i := range batch {
		texts[i] = batch[i].Text()
	}
	vecs, err := in.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
	}
	return vecs, nil
}
