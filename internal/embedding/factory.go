package embedding

import (
	"fmt"

	"github.com/hyperjump/kura/internal/config"
)

// New builds the embedder selected by cfg.Provider, wrapped in a query cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig, opts ...Option) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case config.ProviderMock:
		inner = NewMockEmbedder(cfg.Dimensions)
	case config.ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg, opts...)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize, opts...), nil
	}
	return inner, nil
}
