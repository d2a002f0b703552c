package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/skillmatch/internal/logger"
)

const (
	providerName      = "gemini"
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	baseRetryDelay    = time.Second
	// Quota errors asking to wait longer than this are returned instead of retried.
	maxQuotaDelay = 10 * time.Second
)

var (
	wait = waitFor

	retryAfterRe = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)
)

// models is the subset of *genai.Models used here.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// NewClient creates a genai client for the Gemini API backend.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return client, nil
}

// Generator sends a system instruction plus a message and returns the text reply.
type Generator struct {
	models     models
	model      string
	maxRetries int
	logger     *zap.Logger
}

func NewGenerator(client *genai.Client, model string, log *zap.Logger) (*Generator, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Generator{
		models:     client.Models,
		model:      model,
		maxRetries: defaultMaxRetries,
		logger:     logger.WithCommonFields(log, providerName, model),
	}, nil
}

// GenerateContent asks for a JSON reply. Temporary API errors are retried with backoff.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	attempts := max(g.maxRetries, 1)
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(message), config)
		if err == nil {
			return responseText(resp)
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == attempts {
			break
		}

		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("generate content: %w", lastErr)
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini api returned empty response")
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	return output, nil
}

// retryDelay reports whether err is worth retrying and how long to wait first.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	apiErr, ok := asAPIError(err)
	if !ok {
		return 0, false
	}

	backoff := baseRetryDelay << (attempt - 1)

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if d, found := parseRetryAfter(apiErr.Message); found {
			if d > maxQuotaDelay {
				return 0, false
			}
			return d, true
		}
		return backoff, true
	case apiErr.Code >= http.StatusInternalServerError:
		return backoff, true
	default:
		return 0, false
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func parseRetryAfter(message string) (time.Duration, bool) {
	m := retryAfterRe.FindStringSubmatch(message)
	if len(m) != 2 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// waitFor blocks for d or until ctx ends, whichever comes first.
func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
