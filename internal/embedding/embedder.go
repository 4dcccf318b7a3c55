// Package embedding provides text embedding providers and a query embedding cache.
package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/metrics"
)

// Embedder produces vector embeddings for text. Vectors are L2-normalized so that
// inner product equals cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	// ModelID identifies the model. Vectors from different model ids are not comparable.
	ModelID() string
	Close() error
}

// Option configures an embedder.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithLogger enables debug logging of provider calls.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records provider latency and cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
