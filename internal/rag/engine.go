// Package rag answers questions from the chunks retrieved out of a named store.
package rag

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/apperr"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/generation"
	"github.com/hyperjump/kura/internal/metrics"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/vector"
)

// contextSeparator joins retrieved chunks in the system prompt.
const contextSeparator = "\n\n"

// StoreLoader returns the index of a named store.
type StoreLoader interface {
	Load(ctx context.Context, name string, embedder embedding.Embedder) (*vector.Index, error)
}

// Engine runs retrieval and retrieval-augmented generation.
type Engine struct {
	stores    StoreLoader
	embedder  embedding.Embedder
	generator generation.Generator
	config    config.RetrievalConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for retrieval and generation events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records search and answer outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine. cfg must have defaults applied.
func NewEngine(stores StoreLoader, embedder embedding.Embedder, generator generation.Generator, cfg config.RetrievalConfig, opts ...Option) *Engine {
	e := &Engine{
		stores:    stores,
		embedder:  embedder,
		generator: generator,
		config:    cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns the top-k chunks of q.StoreName most similar to q.Text.
func (e *Engine) Retrieve(ctx context.Context, q models.Query) (resp *models.SearchResponse, err error) {
	defer func() { e.metrics.ObserveSearch(err) }()
	return e.retrieve(ctx, q)
}

func (e *Engine) retrieve(ctx context.Context, q models.Query) (*models.SearchResponse, error) {
	start := time.Now()
	if err := q.Validate(e.config.DefaultTopK, e.config.MaxTopK); err != nil {
		return nil, err
	}
	idx, err := e.stores.Load(ctx, q.StoreName, e.embedder)
	if err != nil {
		return nil, err
	}
	hits, err := idx.Search(ctx, q.Text, q.K(), e.embedder)
	if err != nil {
		return nil, apperr.WithStore(err, q.StoreName)
	}
	e.logger.Debug("retrieved",
		zap.String("store", q.StoreName),
		zap.Int("top_k", q.K()),
		zap.Int("hits", len(hits)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &models.SearchResponse{
		Query:     q.Text,
		StoreName: q.StoreName,
		Results:   hits,
		Total:     len(hits),
		QueryTime: time.Since(start).Milliseconds(),
	}, nil
}

// Answer retrieves context for q and asks the generator to answer q.Text from it.
// The answer's source documents are exactly the chunks placed in the prompt.
func (e *Engine) Answer(ctx context.Context, q models.Query) (ans *models.RAGAnswer, err error) {
	defer func() { e.metrics.ObserveAnswer(err) }()

	found, err := e.retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	hits := found.Results
	if hits == nil {
		hits = []models.SearchHit{}
	}
	ans = &models.RAGAnswer{
		Query:           found.Query,
		SourceDocuments: hits,
		StoreName:       found.StoreName,
		Grounded:        len(hits) > 0,
	}
	if len(hits) == 0 && !e.config.GenerateOnEmptyOrDefault() {
		ans.Answer = e.config.NoContextAnswer
		return ans, nil
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Content
	}
	prompt := strings.ReplaceAll(e.config.SystemPrompt, config.ContextPlaceholder, strings.Join(texts, contextSeparator))

	start := time.Now()
	answer, err := e.generator.Generate(ctx, prompt, found.Query)
	if err != nil {
		return nil, apperr.Generation("answer", found.StoreName, err)
	}
	e.logger.Debug("answered",
		zap.String("store", found.StoreName),
		zap.String("model", e.generator.ModelID()),
		zap.Int("context_chunks", len(hits)),
		zap.Duration("elapsed", time.Since(start)),
	)
	ans.Answer = answer
	return ans, nil
}
