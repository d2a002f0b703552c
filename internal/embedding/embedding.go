// Package embedding turns text into unit-length vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/vecmath"
)

// Provider is a raw embedding backend (OpenAI, Gemini).
type Provider interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Gateway returns vectors that are safe to put into an index.
type Gateway interface {
	Embed(ctx context.Context, text string) (vecmath.Embedding, error)
	Dimension() int
}

// Normalizing checks the width of provider output and scales it to unit length.
type Normalizing struct {
	provider  Provider
	dimension int
	timeout   time.Duration
	logger    *zap.Logger
}

var _ Gateway = (*Normalizing)(nil)

type Option func(*Normalizing)

func WithTimeout(d time.Duration) Option {
	return func(n *Normalizing) { n.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizing) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func NewGateway(provider Provider, dimension int, opts ...Option) *Normalizing {
	if dimension <= 0 {
		dimension = vecmath.DefaultDimension
	}
	n := &Normalizing{
		provider:  provider,
		dimension: dimension,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizing) Dimension() int {
	return n.dimension
}

func (n *Normalizing) Embed(ctx context.Context, text string) (vecmath.Embedding, error) {
	const op = "embedding.Embed"

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid(op, "text to embed must not be empty")
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	started := time.Now()
	raw, err := n.provider.Embed(ctx, text)
	if err != nil {
		return nil, apperr.E(apperr.CodeEmbeddingUnavailable, op, err)
	}

	if len(raw) != n.dimension {
		return nil, apperr.E(apperr.CodeEmbeddingUnavailable, op,
			fmt.Errorf("%w: model %s returned %d values, want %d", vecmath.ErrDimensionMismatch, n.provider.Model(), len(raw), n.dimension))
	}

	out := vecmath.Normalize(raw)
	if vecmath.Norm(out) == 0 {
		return nil, apperr.E(apperr.CodeEmbeddingUnavailable, op, fmt.Errorf("model %s returned a zero vector", n.provider.Model()))
	}

	n.logger.Debug("embedded text",
		zap.String("model", n.provider.Model()),
		zap.Int("text_length", len(text)),
		zap.Duration("took", time.Since(started)),
	)

	return out, nil
}
