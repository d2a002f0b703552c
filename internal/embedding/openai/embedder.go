// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultModel = "text-embedding-3-small"

var ErrAPIKeyNotSet = errors.New("openai api key is required")

type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

type Option func(*config)

type config struct {
	model     string
	dimension int
	opts      []option.RequestOption
}

func WithModel(model string) Option {
	return func(c *config) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

// WithDimension asks the API to shorten vectors. Only text-embedding-3 models support it.
func WithDimension(dim int) Option {
	return func(c *config) { c.dimension = dim }
}

// WithRequestOptions passes raw client options, e.g. option.WithBaseURL.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *config) { c.opts = append(c.opts, opts...) }
}

func New(apiKey string, opts ...Option) (*Embedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrAPIKeyNotSet
	}

	cfg := &config{model: defaultModel}
	for _, opt := range opts {
		opt(cfg)
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, cfg.opts...)

	return &Embedder{
		client:    openai.NewClient(reqOpts...),
		model:     cfg.model,
		dimension: cfg.dimension,
	}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}

	return vector, nil
}
