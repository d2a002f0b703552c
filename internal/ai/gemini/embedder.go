package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultEmbeddingModel = "gemini-embedding-001"
	embeddingTaskType     = "SEMANTIC_SIMILARITY"
)

// Embedder implements embedding.Provider on top of Models.EmbedContent.
type Embedder struct {
	models    models
	model     string
	dimension int
}

func NewEmbedder(client *genai.Client, model string, dimension int) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}

	return &Embedder{models: client.Models, model: model, dimension: dimension}, nil
}

func (e *Embedder) Model() string {
	return e.model
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{TaskType: embeddingTaskType}
	if e.dimension > 0 {
		config.OutputDimensionality = genai.Ptr(int32(e.dimension))
	}

	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini api returned no embeddings")
	}

	return resp.Embeddings[0].Values, nil
}
