package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
)

const (
	payloadMagic   = "KVEC"
	payloadVersion = 1
	maxIDLen       = 1024
	maxDimensions  = 1 << 16
)

// MemoryIndex is an in-memory vector index using brute-force inner product search.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends vectors with the given IDs.
func (m *MemoryIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k vectors by inner product (cosine similarity for normalized vectors).
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return nil, nil
	}
	scores := make([]VectorResult, len(m.ids))
	for i, vec := range m.vectors {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		scores[i] = VectorResult{ID: m.ids[i], Score: InnerProduct(query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// IDs returns the vector ids in insertion order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ids...)
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// WriteTo encodes the index. Format: magic "KVEC", version (4), dimension (4), n (4),
// then per vector: idLen (4), id bytes, vector (dimension*4 bytes), all little endian.
func (m *MemoryIndex) WriteTo(w io.Writer) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}
	header := make([]byte, 16)
	copy(header, payloadMagic)
	binary.LittleEndian.PutUint32(header[4:], payloadVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(m.dimensions))
	binary.LittleEndian.PutUint32(header[12:], uint32(len(m.ids)))
	if _, err := cw.Write(header); err != nil {
		return cw.n, fmt.Errorf("write header: %w", err)
	}
	for i, id := range m.ids {
		var idLen [4]byte
		binary.LittleEndian.PutUint32(idLen[:], uint32(len(id)))
		if _, err := cw.Write(idLen[:]); err != nil {
			return cw.n, fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(cw, id); err != nil {
			return cw.n, fmt.Errorf("write id: %w", err)
		}
		if _, err := cw.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return cw.n, fmt.Errorf("write vector: %w", err)
		}
	}
	return cw.n, bw.Flush()
}

// ReadMemoryIndex decodes an index written by WriteTo. Truncated payloads, trailing
// bytes and malformed headers are errors. Nothing is allocated for the vectors until
// the header has been checked against maxDimensions and, when r can report its
// length, against the bytes actually available.
func ReadMemoryIndex(r io.Reader) (*MemoryIndex, error) {
	remaining, sized := readerLen(r)
	br := bufio.NewReader(r)
	header := make([]byte, 16)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(header[:4]) != payloadMagic {
		return nil, fmt.Errorf("not a vector payload")
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != payloadVersion {
		return nil, fmt.Errorf("unsupported payload version %d", v)
	}
	rawDim := binary.LittleEndian.Uint32(header[8:])
	n := binary.LittleEndian.Uint32(header[12:])
	if rawDim == 0 || rawDim > maxDimensions {
		return nil, fmt.Errorf("invalid dimension %d", rawDim)
	}
	dim := int(rawDim)
	if sized {
		// smallest entry: length prefix, one id byte, the vector
		minEntry := int64(4 + 1 + dim*4)
		if avail := remaining - int64(len(header)); avail < 0 || int64(n) > avail/minEntry {
			return nil, fmt.Errorf("header claims %d vectors of dimension %d, payload has %d bytes", n, dim, avail)
		}
	}

	m, err := NewMemoryIndex(dim)
	if err != nil {
		return nil, err
	}
	capHint := n
	if capHint > 1<<16 {
		capHint = 1 << 16
	}
	m.ids = make([]string, 0, capHint)
	m.vectors = make([][]float32, 0, capHint)
	buf := make([]byte, dim*4)
	for i := uint32(0); i < n; i++ {
		var idLen [4]byte
		if _, err := io.ReadFull(br, idLen[:]); err != nil {
			return nil, fmt.Errorf("read id len: %w", err)
		}
		l := binary.LittleEndian.Uint32(idLen[:])
		if l == 0 || l > maxIDLen {
			return nil, fmt.Errorf("invalid id length %d", l)
		}
		idBytes := make([]byte, l)
		if _, err := io.ReadFull(br, idBytes); err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		m.ids = append(m.ids, string(idBytes))
		m.vectors = append(m.vectors, bytesToFloat32Slice(buf))
	}
	if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after %d vectors", n)
	}
	return m, nil
}

// readerLen reports how many bytes r still holds, when it can tell.
func readerLen(r io.Reader) (int64, bool) {
	switch v := r.(type) {
	case interface{ Len() int }:
		return int64(v.Len()), true
	case *os.File:
		fi, err := v.Stat()
		if err != nil || !fi.Mode().IsRegular() {
			return 0, false
		}
		pos, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, false
		}
		return fi.Size() - pos, true
	}
	return 0, false
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
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
