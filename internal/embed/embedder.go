// Package embed wraps the embedding provider behind a small interface and
// tracks token usage and estimated spend.
package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Provider generates embedding vectors for batches of text.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model in use.
	Model() string
}

// Config configures the OpenAI-compatible embedding client.
type Config struct {
	// APIKey authenticates against the provider. Optional when BaseURL
	// points at a local provider that ignores authentication.
	APIKey string

	// BaseURL overrides the provider endpoint, e.g. for a local
	// OpenAI-compatible service.
	BaseURL string

	// Model is the embedding model name.
	Model string

	// Timeout bounds each provider call so a hung request surfaces as a
	// retryable error instead of blocking the run.
	Timeout time.Duration
}

// OpenAI implements Provider on top of an OpenAI-compatible embeddings API.
type OpenAI struct {
	embedder embeddings.Embedder
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewOpenAI builds the provider client.
func NewOpenAI(cfg Config, logger *zap.Logger) (*OpenAI, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible services ignore the token but the
		// client requires one.
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("wrap embedder: %w", err)
	}

	return &OpenAI{embedder: embedder, model: cfg.Model, timeout: cfg.Timeout, logger: logger}, nil
}

// Embed generates one vector per input text. Each call runs under the
// configured timeout; hitting it returns an error like any other provider
// failure, so callers retry or dead-letter it.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	vectors, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts))
	}
	o.logger.Debug("embedded batch", zap.Int("texts", len(texts)), zap.String("model", o.model))
	return vectors, nil
}

// Model names the embedding model in use.
func (o *OpenAI) Model() string {
	return o.model
}

// pricePerThousandTokens is the embedding price table in USD. Unknown models
// fall back to the ada-002 price so the estimate errs high.
var pricePerThousandTokens = map[string]float64{
	"text-embedding-ada-002": 0.00005,
	"text-embedding-3-small": 0.00001,
	"text-embedding-3-large": 0.000065,
}

const fallbackPricePerThousand = 0.00005

// CountTokens estimates the token count of the texts for the given model.
// The provider response does not surface usage, so the count is computed
// locally with the model's tokenizer.
func CountTokens(model string, texts []string) (int, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Embedding models not in tiktoken's model table all use cl100k.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, fmt.Errorf("load tokenizer: %w", err)
		}
	}
	total := 0
	for _, text := range texts {
		total += len(enc.Encode(text, nil, nil))
	}
	return total, nil
}

// EstimateCost converts a token count into estimated USD for the model.
func EstimateCost(model string, tokens int) float64 {
	price, ok := pricePerThousandTokens[model]
	if !ok {
		price = fallbackPricePerThousand
	}
	return float64(tokens) / 1000 * price
}
