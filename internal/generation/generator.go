// Package generation provides chat-model providers that turn a grounded prompt into an answer.
package generation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/metrics"
)

// Generator answers question under the instructions (and retrieved context) in systemPrompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, question string) (string, error)
	ModelID() string
}

// Option configures a generator.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithLogger enables debug logging of completions.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records completion latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New builds the generator selected by cfg.Provider.
func New(cfg config.GenerationConfig, opts ...Option) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return NewMockGenerator(), nil
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
