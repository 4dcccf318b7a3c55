// Package vector provides the persisted vector index of a store and similarity search over it.
package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/storage"
)

// File names inside a store directory.
const (
	VectorsFile = "index.vec"
	ChunksFile  = "index.db"
)

// VectorResult is a single vector search hit; ID is the chunk ID.
type VectorResult struct {
	ID    string
	Score float64
}

// Manifest records how an index was built.
type Manifest = storage.Manifest

// Index pairs the vectors of a store with the chunks they were built from.
// It is read-only once built or loaded.
type Index struct {
	vectors  *MemoryIndex
	chunks   map[string]models.Chunk
	order    []string
	manifest Manifest
}

// BuildFrom embeds every chunk text and indexes the resulting vectors.
func BuildFrom(ctx context.Context, chunks []models.Chunk, embedder embedding.Embedder) (*Index, error) {
	if len(chunks) == 0 {
		return nil, apperr.Validation("build index", "", "no chunks to index")
	}
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	byID := make(map[string]models.Chunk, len(chunks))
	for i, c := range chunks {
		if _, dup := byID[c.ID]; dup {
			return nil, apperr.Validation("build index", "", "duplicate chunk id %s", c.ID)
		}
		texts[i] = c.Content
		ids[i] = c.ID
		byID[c.ID] = c
	}

	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Embedding("build index", "", err)
	}
	if len(vecs) != len(chunks) {
		return nil, apperr.Embedding("build index", "", fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(chunks)))
	}

	mem, err := NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, apperr.Embedding("build index", "", err)
	}
	if err := mem.Add(ids, vecs); err != nil {
		return nil, apperr.Embedding("build index", "", err)
	}
	return &Index{
		vectors: mem,
		chunks:  byID,
		order:   ids,
		manifest: Manifest{
			EmbeddingModel: embedder.ModelID(),
			Dimensions:     embedder.Dimensions(),
			ChunkCount:     len(chunks),
			CreatedAt:      time.Now().UTC(),
		},
	}, nil
}

// Manifest returns the build manifest.
func (idx *Index) Manifest() Manifest {
	return idx.manifest
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int {
	return len(idx.order)
}

// Chunks returns the indexed chunks in build order.
func (idx *Index) Chunks() []models.Chunk {
	out := make([]models.Chunk, len(idx.order))
	for i, id := range idx.order {
		out[i] = idx.chunks[id]
	}
	return out
}

// Search embeds query and returns the min(k, Len()) most similar chunks, most similar first.
func (idx *Index) Search(ctx context.Context, query string, k int, embedder embedding.Embedder) ([]models.SearchHit, error) {
	if k <= 0 {
		return nil, apperr.Validation("search", "", "k must be positive, got %d", k)
	}
	if idx.Len() == 0 {
		return []models.SearchHit{}, nil
	}
	if embedder.ModelID() != idx.manifest.EmbeddingModel || embedder.Dimensions() != idx.manifest.Dimensions {
		return nil, apperr.CorruptStore("search", "", fmt.Errorf("index built with %s/%d, embedder is %s/%d",
			idx.manifest.EmbeddingModel, idx.manifest.Dimensions, embedder.ModelID(), embedder.Dimensions()))
	}
	qvec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperr.Embedding("search", "", err)
	}
	results, err := idx.vectors.Search(ctx, qvec, k)
	if err != nil {
		return nil, apperr.Classify(apperr.KindEmbedding, "search", "", err)
	}

	hits := make([]models.SearchHit, 0, len(results))
	for _, r := range results {
		c := idx.chunks[r.ID]
		score := r.Score
		hits = append(hits, models.SearchHit{Content: c.Content, Metadata: c.Metadata, Score: &score})
	}
	return hits, nil
}

// Serialize writes the vector payload and the chunk sidecar into dir, which must exist.
func (idx *Index) Serialize(ctx context.Context, dir string) error {
	if err := idx.writeVectors(filepath.Join(dir, VectorsFile)); err != nil {
		return apperr.IO("serialize", "", err)
	}

	sidecar, err := storage.CreateSQLiteChunkStore(filepath.Join(dir, ChunksFile))
	if err != nil {
		return apperr.IO("serialize", "", err)
	}
	if err := sidecar.WriteManifest(ctx, idx.manifest); err != nil {
		sidecar.Close()
		return apperr.IO("serialize", "", err)
	}
	if err := sidecar.WriteChunks(ctx, idx.Chunks()); err != nil {
		sidecar.Close()
		return apperr.IO("serialize", "", err)
	}
	if err := sidecar.Close(); err != nil {
		return apperr.IO("serialize", "", err)
	}
	return nil
}

func (idx *Index) writeVectors(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vector file: %w", err)
	}
	if _, err := idx.vectors.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Deserialize loads the index stored in dir. The manifest must match embedder's model
// and dimension, and the vector ids must match the sidecar chunks one to one.
func Deserialize(ctx context.Context, dir string, embedder embedding.Embedder) (*Index, error) {
	mem, err := readVectors(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, corrupt(err)
	}

	sidecar, err := storage.OpenSQLiteChunkStore(filepath.Join(dir, ChunksFile))
	if err != nil {
		return nil, corrupt(err)
	}
	defer sidecar.Close()

	manifest, err := sidecar.ReadManifest(ctx)
	if err != nil {
		return nil, corrupt(err)
	}
	if manifest.EmbeddingModel != embedder.ModelID() {
		return nil, corrupt(fmt.Errorf("store embedded with %q, embedder is %q", manifest.EmbeddingModel, embedder.ModelID()))
	}
	if manifest.Dimensions != embedder.Dimensions() || manifest.Dimensions != mem.Dimensions() {
		return nil, corrupt(fmt.Errorf("dimension mismatch: manifest %d, payload %d, embedder %d",
			manifest.Dimensions, mem.Dimensions(), embedder.Dimensions()))
	}

	chunks, err := sidecar.ReadChunks(ctx)
	if err != nil {
		return nil, corrupt(err)
	}
	ids := mem.IDs()
	if len(chunks) != len(ids) || manifest.ChunkCount != len(ids) {
		return nil, corrupt(fmt.Errorf("%d vectors, %d chunks, manifest says %d", len(ids), len(chunks), manifest.ChunkCount))
	}
	byID := make(map[string]models.Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID != ids[i] {
			return nil, corrupt(fmt.Errorf("vector %d is %s, chunk is %s", i, ids[i], c.ID))
		}
		byID[c.ID] = c
	}
	return &Index{vectors: mem, chunks: byID, order: ids, manifest: *manifest}, nil
}

func readVectors(path string) (*MemoryIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMemoryIndex(f)
}

func corrupt(err error) error {
	return apperr.Classify(apperr.KindCorruptStore, "deserialize", "", err)
}
