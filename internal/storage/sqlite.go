package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/menurag/internal/models"
)

// SQLiteStorage implements EmbeddingStore and RunStore on one SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		key TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);

	CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		batches INTEGER NOT NULL DEFAULT 0,
		records INTEGER NOT NULL DEFAULT 0,
		embedded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_runs_started_at ON ingest_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the stored vector for key.
func (s *SQLiteStorage) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var dims int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, vector FROM embeddings WHERE key = ?`, key,
	).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, fmt.Errorf("embedding %s: %w", key, err)
	}
	return vec, true, nil
}

// Put stores vec under key, replacing any previous value.
func (s *SQLiteStorage) Put(ctx context.Context, key, model string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (key, model, dimensions, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, model, len(vec), encodeVector(vec), time.Now(),
	)
	return err
}

// Count returns the number of stored embeddings.
func (s *SQLiteStorage) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// SaveRun inserts or updates an ingestion run.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *models.IngestRun) error {
	var finished interface{}
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ingest_runs
		 (id, source, started_at, finished_at, batches, records, embedded, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt, finished,
		run.Batches, run.Records, run.Embedded, run.Failed, run.Error,
	)
	return err
}

// GetRun returns a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*models.IngestRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, started_at, finished_at, batches, records, embedded, failed, error
		 FROM ingest_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest run not found: %s", id)
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*models.IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, started_at, finished_at, batches, records, embedded, failed, error
		 FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.IngestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.IngestRun, error) {
	var run models.IngestRun
	var finished sql.NullTime
	var errText sql.NullString
	if err := row.Scan(&run.ID, &run.Source, &run.StartedAt, &finished,
		&run.Batches, &run.Records, &run.Embedded, &run.Failed, &errText); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	run.Error = errText.String
	return &run, nil
}

// encodeVector packs vec as little-endian float32s.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(blob), 4*dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return vec, nil
}
