package vector

import (
	"bufio"
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDuplicateID is returned when a node id is added twice.
	ErrDuplicateID = errors.New("duplicate vector id")
	// ErrCorrupt is returned when a vectors file is not in the expected format.
	ErrCorrupt = errors.New("corrupt vectors file")
)

var fileMagic = [4]byte{'R', 'B', 'V', 'X'}

const fileVersion uint16 = 1

// MemoryIndex holds node embeddings as one row-major matrix and searches it by brute-force
// inner product. It is built once per index and then only read.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	ids        []string
	rows       map[string]int
	data       []float32
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{dimensions: dimensions, rows: make(map[string]int)}, nil
}

// OpenMemoryIndex loads a saved index, taking its dimension from the file.
func OpenMemoryIndex(path string) (*MemoryIndex, error) {
	m := &MemoryIndex{rows: make(map[string]int)}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Dimensions returns the vector length the index accepts.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Add appends one row per id. The batch is rejected as a whole when any vector has the wrong
// length or any id is already present.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: %s has %d, expected %d", ErrDimensionMismatch, id, len(vectors[i]), m.dimensions)
		}
		_, seen := batch[id]
		if _, exists := m.rows[id]; exists || seen {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		batch[id] = struct{}{}
	}
	m.data = slices.Grow(m.data, len(ids)*m.dimensions)
	for i, id := range ids {
		m.rows[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.data = append(m.data, vectors[i]...)
	}
	return nil
}

func (m *MemoryIndex) row(i int) []float32 {
	return m.data[i*m.dimensions : (i+1)*m.dimensions]
}

// Search returns the k rows with the highest inner product against query. Equal scores keep
// insertion order, so a repeated search returns the same window.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	hits := make([]*VectorResult, len(m.ids))
	for i, id := range m.ids {
		hits[i] = &VectorResult{ID: id, Score: InnerProduct(query, m.row(i))}
	}
	slices.SortStableFunc(hits, func(a, b *VectorResult) int { return cmp.Compare(b.Score, a.Score) })
	return hits[:min(k, len(hits))], nil
}

type fileHeader struct {
	Magic      [4]byte
	Version    uint16
	_          uint16
	Dimensions uint32
	Count      uint32
}

// Save writes the index to path, creating parent directories. The file is a fixed header,
// the length-prefixed ids, then the matrix in little-endian float32.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	hdr := fileHeader{Magic: fileMagic, Version: fileVersion, Dimensions: uint32(m.dimensions), Count: uint32(len(m.ids))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	var lenBuf [binary.MaxVarintLen64]byte
	for _, id := range m.ids {
		n := binary.PutUvarint(lenBuf[:], uint64(len(id)))
		if _, err := w.Write(lenBuf[:n]); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.WriteString(id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, m.data); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush vectors file: %w", err)
	}
	return file.Sync()
}

// Load replaces the contents with the index saved at path. An index created with a dimension
// only accepts a file of that dimension.
func (m *MemoryIndex) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open vectors file: %w", err)
	}
	r := bytes.NewReader(raw)
	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if hdr.Magic != fileMagic || hdr.Version != fileVersion {
		return fmt.Errorf("%w: unknown format", ErrCorrupt)
	}
	dims := int(hdr.Dimensions)
	if m.dimensions != 0 && dims != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dims, m.dimensions)
	}

	ids := make([]string, 0, hdr.Count)
	rows := make(map[string]int, hdr.Count)
	for i := 0; i < int(hdr.Count); i++ {
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return fmt.Errorf("%w: id %d", ErrCorrupt, i)
		}
		id := make([]byte, n)
		if _, err := io.ReadFull(r, id); err != nil {
			return fmt.Errorf("%w: id %d: %v", ErrCorrupt, i, err)
		}
		rows[string(id)] = i
		ids = append(ids, string(id))
	}
	if r.Len() != len(ids)*dims*4 {
		return fmt.Errorf("%w: %d vector bytes for %d rows of %d", ErrCorrupt, r.Len(), len(ids), dims)
	}
	data := make([]float32, len(ids)*dims)
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("%w: vectors: %v", ErrCorrupt, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimensions, m.ids, m.rows, m.data = dims, ids, rows, data
	return nil
}

// Close releases nothing; the index lives in memory.
func (m *MemoryIndex) Close() error {
	return nil
}
