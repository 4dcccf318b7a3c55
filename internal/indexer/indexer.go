// Package indexer turns uploaded documents into chunks and persisted vector stores.
package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/metrics"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/vector"
)

var errNoText = errors.New("document contains no extractable text")

// Extractor turns raw document bytes into pages.
type Extractor interface {
	ExtractPages(content []byte, ext string) ([]models.Page, error)
}

// StoreWriter persists a built index under a store name, replacing any previous store.
type StoreWriter interface {
	ValidateName(name string) error
	Save(ctx context.Context, name string, idx *vector.Index) (string, error)
}

// Ingestor runs the ingestion pipeline: extract, chunk, embed and index, persist.
type Ingestor struct {
	stores    StoreWriter
	embedder  embedding.Embedder
	extractor Extractor
	config    config.IngestConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets a logger for pipeline stage transitions.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithMetrics records ingest outcomes and durations.
func WithMetrics(m *metrics.Metrics) IngestorOption {
	return func(in *Ingestor) { in.metrics = m }
}

// NewIngestor creates an ingestor. cfg supplies the chunking defaults: an absent chunk
// size takes cfg.ChunkSize, an absent overlap takes cfg.ChunkOverlap when that is below
// the chunk size and 0 otherwise. Explicit values, zero overlap included, are used as given.
func NewIngestor(stores StoreWriter, embedder embedding.Embedder, extractor Extractor, cfg config.IngestConfig, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		stores:    stores,
		embedder:  embedder,
		extractor: extractor,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest builds a store named req.StoreName from one document and replaces any existing
// store of that name. On failure the previous store is left untouched.
func (in *Ingestor) Ingest(ctx context.Context, req models.IngestRequest) (res *models.UploadResult, err error) {
	start := time.Now()
	log := in.logger.With(zap.String("store", req.StoreName), zap.String("filename", req.Filename))
	defer func() {
		in.metrics.ObserveIngest(start, chunkCount(res), err)
		if err != nil {
			log.Debug("ingest failed", zap.String("kind", apperr.KindOf(err).Code()), zap.Error(err))
		}
	}()
	log.Debug("ingest received", zap.Int("bytes", len(req.Content)))

	size := in.config.ChunkSize
	if req.ChunkSize != nil {
		size = *req.ChunkSize
	}
	overlap := 0
	switch {
	case req.ChunkOverlap != nil:
		overlap = *req.ChunkOverlap
	case in.config.ChunkOverlap < size:
		overlap = in.config.ChunkOverlap
	}
	if err := in.stores.ValidateName(req.StoreName); err != nil {
		return nil, err
	}
	splitter, err := NewSplitter(size, overlap, in.config.Separators)
	if err != nil {
		return nil, err
	}
	if len(req.Content) == 0 {
		return nil, apperr.Validation("ingest", req.StoreName, "document %q is empty", req.Filename)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperr.Cancelled("ingest", req.StoreName, err)
	}

	ext := strings.ToLower(filepath.Ext(req.Filename))
	pages, err := in.extractor.ExtractPages(req.Content, ext)
	if err != nil {
		return nil, apperr.Extraction("ingest", req.StoreName, err)
	}
	log.Debug("ingest extracted", zap.Int("pages", len(pages)))

	chunks := splitter.ChunkPages(filepath.Base(req.Filename), pages)
	if len(chunks) == 0 {
		return nil, apperr.Extraction("ingest", req.StoreName, errNoText)
	}
	log.Debug("ingest chunked", zap.Int("chunks", len(chunks)))

	idx, err := vector.BuildFrom(ctx, chunks, in.embedder)
	if err != nil {
		return nil, apperr.Classify(apperr.KindEmbedding, "ingest", req.StoreName, err)
	}
	log.Debug("ingest embedded and indexed", zap.String("model", idx.Manifest().EmbeddingModel))

	location, err := in.stores.Save(ctx, req.StoreName, idx)
	if err != nil {
		return nil, apperr.IO("ingest", req.StoreName, err)
	}
	log.Debug("ingest persisted", zap.String("location", location), zap.Duration("elapsed", time.Since(start)))

	return &models.UploadResult{
		Status:       "success",
		Filename:     req.Filename,
		StoreName:    req.StoreName,
		Pages:        len(pages),
		Chunks:       len(chunks),
		Method:       models.ChunkingMethod,
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Location:     location,
	}, nil
}

func chunkCount(res *models.UploadResult) int {
	if res == nil {
		return 0
	}
	return res.Chunks
}
