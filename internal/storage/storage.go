// Package storage persists the chunk sidecar of a vector store and measures disk usage.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/kura/internal/models"
)

// Manifest describes how a store's vectors were produced.
type Manifest struct {
	EmbeddingModel string
	Dimensions     int
	ChunkCount     int
	CreatedAt      time.Time
}

// ChunkStore holds a store's manifest and the chunks its vectors were built from.
type ChunkStore interface {
	WriteManifest(ctx context.Context, m Manifest) error
	ReadManifest(ctx context.Context) (*Manifest, error)

	// WriteChunks stores chunks in order; ReadChunks returns them in the same order.
	WriteChunks(ctx context.Context, chunks []models.Chunk) error
	ReadChunks(ctx context.Context) ([]models.Chunk, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
