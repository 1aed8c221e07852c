package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/hyperjump/menurag/internal/models"
)

// MemoryIndex ranks by brute-force cosine similarity over copies of the built records.
type MemoryIndex struct {
	dimensions int
	records    []models.Restaurant
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty in-memory index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string {
	return string(IndexTypeMemory)
}

// Build replaces the index contents. Records and vectors are copied.
func (m *MemoryIndex) Build(_ context.Context, records []models.Restaurant, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d != %d", len(records), len(vectors))
	}
	recs := make([]models.Restaurant, len(records))
	vecs := make([][]float32, len(vectors))
	for i := range records {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		recs[i] = records[i].Clone()
		vecs[i] = append([]float32(nil), vectors[i]...)
	}
	m.mu.Lock()
	m.records, m.vectors = recs, vecs
	m.mu.Unlock()
	return nil
}

// Search returns the topK records most similar to query.
func (m *MemoryIndex) Search(_ context.Context, query []float32, topK int) ([]*Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ranked := TopK(query, m.vectors, topK)
	hits := make([]*Hit, len(ranked))
	for i, r := range ranked {
		hits[i] = &Hit{Index: r.Index, Restaurant: m.records[r.Index].Clone(), Score: r.Score}
	}
	return hits, nil
}

// Save persists the index to path, creating the directory if needed. Format: dimension (4), n (4),
// then per record: record JSON length (4), record JSON, vector (dimension*4 bytes). All integers
// are little-endian.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Close()
}

func (m *MemoryIndex) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, rec := range m.records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
			return fmt.Errorf("write record len: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents with the file at path. A missing file leaves the index
// unchanged and is not an error. The file's dimension must match.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	records := make([]models.Restaurant, 0, n)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var recLen uint32
		if err := binary.Read(r, binary.LittleEndian, &recLen); err != nil {
			return fmt.Errorf("read record len: %w", err)
		}
		data := make([]byte, recLen)
		if _, err := io.ReadFull(r, data); err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		var rec models.Restaurant
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode record %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		records = append(records, rec)
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	m.mu.Lock()
	m.records, m.vectors = records, vectors
	m.mu.Unlock()
	return nil
}

// Records returns copies of the indexed records in build order.
func (m *MemoryIndex) Records() []models.Restaurant {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Restaurant, len(m.records))
	for i, r := range m.records {
		out[i] = r.Clone()
	}
	return out
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of indexed records.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
