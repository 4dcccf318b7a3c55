package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/lru"
	"github.com/hyperjump/kura/internal/metrics"
)

// CachedEmbedder memoizes single-text embeddings (queries) in an LRU cache.
// Batch calls used during ingestion go straight to the wrapped embedder.
type CachedEmbedder struct {
	Embedder
	cache   *lru.Cache[string, []float32]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewCachedEmbedder wraps inner with a cache of the given capacity.
func NewCachedEmbedder(inner Embedder, capacity int, opts ...Option) *CachedEmbedder {
	o := applyOptions(opts)
	return &CachedEmbedder{
		Embedder: inner,
		cache:    lru.New[string, []float32](capacity),
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// Embed returns the cached vector for text or embeds and caches it.
// The returned slice is shared and must not be modified.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.metrics.ObserveCache("embedding", true)
		return v, nil
	}
	c.metrics.ObserveCache("embedding", false)
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	if c.logger != nil {
		c.logger.Debug("query embedding cached", zap.Int("entries", c.cache.Len()))
	}
	return v, nil
}
