package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/skillmatch/internal/ai/gemini"
	"github.com/spigell/skillmatch/internal/embedding"
	"github.com/spigell/skillmatch/internal/embedding/openai"
	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/index/memory"
	"github.com/spigell/skillmatch/internal/index/pgvector"
	"github.com/spigell/skillmatch/internal/index/pinecone"
	"github.com/spigell/skillmatch/internal/matching"
	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/secrets"
)

// buildEngine wires providers and indices from config. The returned func releases them.
func buildEngine(ctx context.Context, config *Config, logger *zap.Logger) (*matching.Engine, func(), error) {
	client, err := newGeminiClient(ctx, config.Gemini)
	if err != nil {
		return nil, nil, err
	}

	generator, err := gemini.NewGenerator(client, config.Gemini.Model, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building gemini generator: %w", err)
	}
	classifier := gemini.NewClassifier(generator, logger, config.Gemini.MaxLogLength)

	provider, err := newEmbeddingProvider(config, client)
	if err != nil {
		return nil, nil, err
	}

	gateway := embedding.NewGateway(provider, config.Matching.Dimension,
		embedding.WithTimeout(config.Matching.EmbedTimeout),
		embedding.WithLogger(logger),
	)

	indices, release, err := newIndices(ctx, config, logger)
	if err != nil {
		return nil, nil, err
	}

	engine, err := matching.NewEngine(config.matchingConfig(), matching.Deps{
		Gateway:    gateway,
		Indices:    indices,
		Classifier: classifier,
		Logger:     logger,
	})
	if err != nil {
		release()
		return nil, nil, err
	}

	logger.Debug("engine ready",
		zap.String("embeddings", provider.Model()),
		zap.String("index", config.Index.Backend),
		zap.Int("dimension", config.Matching.Dimension),
	)

	return engine, release, nil
}

func newGeminiClient(ctx context.Context, cfg *GeminiConfig) (*genai.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set gemini.api-key-file or SKILLMATCH_GEMINI_API_KEY_FILE)", err)
	}

	return gemini.NewClient(ctx, apiKey)
}

func newEmbeddingProvider(config *Config, client *genai.Client) (embedding.Provider, error) {
	switch provider := strings.ToLower(strings.TrimSpace(config.Embeddings.Provider)); provider {
	case "", "gemini":
		return gemini.NewEmbedder(client, config.Gemini.EmbeddingModel, config.Matching.Dimension)
	case "openai":
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "openai api key",
			Value: config.OpenAI.APIKey,
			File:  config.OpenAI.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set openai.api-key-file or SKILLMATCH_OPENAI_API_KEY_FILE)", err)
		}

		opts := []openai.Option{
			openai.WithModel(config.OpenAI.Model),
			openai.WithDimension(config.Matching.Dimension),
		}
		if base := strings.TrimSpace(config.OpenAI.BaseURL); base != "" {
			opts = append(opts, openai.WithRequestOptions(option.WithBaseURL(base)))
		}
		return openai.New(apiKey, opts...)
	default:
		return nil, fmt.Errorf("unsupported embeddings provider: %s", config.Embeddings.Provider)
	}
}

func newIndices(ctx context.Context, config *Config, logger *zap.Logger) (index.Pair, func(), error) {
	noop := func() {}
	dim := config.Matching.Dimension

	switch backend := strings.ToLower(strings.TrimSpace(config.Index.Backend)); backend {
	case "", "memory":
		logger.Warn("using in-memory index, stored needs and offers are lost on exit")
		return memory.NewPair(dim), noop, nil
	case "pgvector":
		store, err := pgvector.Open(ctx, config.Index.DatabaseDSN, dim,
			pgvector.WithTable(config.Index.Table),
			pgvector.WithLogger(logger),
		)
		if err != nil {
			return index.Pair{}, nil, fmt.Errorf("opening pgvector index: %w", err)
		}
		return store.Pair(), store.Close, nil
	case "pinecone":
		pc := config.Index.Pinecone
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "pinecone api key",
			Value: pc.APIKey,
			File:  pc.APIKeyFile,
			Env:   "PINECONE_API_KEY",
		})
		if err != nil {
			return index.Pair{}, nil, fmt.Errorf("%w (set index.pinecone.api-key-file or SKILLMATCH_PINECONE_API_KEY_FILE)", err)
		}

		needs, err := pinecone.New(logger, profile.KindNeed, pc.NeedsHost, apiKey, pc.Namespace)
		if err != nil {
			return index.Pair{}, nil, fmt.Errorf("needs index: %w", err)
		}
		offers, err := pinecone.New(logger, profile.KindOffer, pc.OffersHost, apiKey, pc.Namespace)
		if err != nil {
			return index.Pair{}, nil, fmt.Errorf("offers index: %w", err)
		}
		return index.Pair{Needs: needs, Offers: offers}, noop, nil
	default:
		return index.Pair{}, nil, fmt.Errorf("unsupported index backend: %s", config.Index.Backend)
	}
}
