package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/metrics"
)

// OpenAIGenerator calls the chat completions API with a system message and the user question.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewOpenAIGenerator creates a generator from cfg. An API key is required.
func NewOpenAIGenerator(cfg config.GenerationConfig, opts ...Option) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai generator: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		logger:      o.logger,
		metrics:     o.metrics,
	}, nil
}

// Generate returns the first choice of a single chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, question string) (string, error) {
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(callCtx, req)
	g.metrics.ObserveProvider("openai", "chat", start, err)
	if err != nil {
		if ctx.Err() == nil && callCtx.Err() != nil {
			return "", fmt.Errorf("openai chat completion: model timed out after %s", g.timeout)
		}
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: no choices returned")
	}
	if g.logger != nil {
		g.logger.Debug("chat completion",
			zap.String("model", g.model),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			zap.Duration("took", time.Since(start)))
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelID returns the configured chat model.
func (g *OpenAIGenerator) ModelID() string {
	return g.model
}
