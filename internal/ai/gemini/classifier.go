package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/ai"
	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

// Classifier asks Gemini whether a need query is specific enough to match on.
type Classifier struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	systemInstruction   = "You are a strict JSON generator."
)

var _ ai.Classifier = (*Classifier)(nil)

func NewClassifier(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Classifier {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Classifier{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Classify returns an error wrapping apperr.ErrAmbiguityUnresolved when the
// model replied but the reply could not be read.
func (c *Classifier) Classify(ctx context.Context, query string) (*ai.Verdict, error) {
	prompt := buildPrompt(query)

	c.logger.Debug("gemini classify request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("query_preview", utils.TruncateForLog(query, c.maxLogLen)),
	)

	raw, err := c.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("gemini classify response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, c.maxLogLen)),
	)

	verdict, err := parseVerdict(raw)
	if err != nil {
		return nil, err
	}

	verdict.Raw = raw
	return verdict, nil
}

func buildPrompt(query string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Is this request ambiguous? Reply with JSON {\"ambiguous\",\"reason\",\"suggestions\"}.\n\n{{QUERY}}"
	}
	return strings.ReplaceAll(template, "{{QUERY}}", strings.TrimSpace(query))
}

func parseVerdict(raw string) (*ai.Verdict, error) {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty classifier response: %w", apperr.ErrAmbiguityUnresolved)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse classifier response: %v: %w", err, apperr.ErrAmbiguityUnresolved)
	}

	flag, ok := data["ambiguous"]
	if !ok {
		flag, ok = data["ambigous"]
	}
	if !ok {
		return nil, fmt.Errorf("classifier response has no verdict: %w", apperr.ErrAmbiguityUnresolved)
	}

	ambiguous, ok := coerceBool(flag)
	if !ok {
		return nil, fmt.Errorf("classifier verdict %v is not a boolean: %w", flag, apperr.ErrAmbiguityUnresolved)
	}

	return &ai.Verdict{
		Specific:    !ambiguous,
		Reason:      coerceString(data["reason"]),
		Suggestions: coerceStrings(data["suggestions"]),
	}, nil
}

// extractJSON strips code fences and any prose around the outermost object.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return strings.TrimSpace(raw)
	}
	return raw[start : end+1]
}

// coerceBool accepts a JSON bool, a number, or true/false/yes/no in any case.
func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	case float64:
		return val != 0, true
	}
	return false, false
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStrings(v any) []string {
	out := []string{}
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out = append(out, s)
		}
	}
	return out
}
