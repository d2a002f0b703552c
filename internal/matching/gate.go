package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/ai"
	"github.com/spigell/skillmatch/internal/apperr"
)

const unusableVerdictReason = "classifier returned unusable output"

var emptyQuerySuggestions = []string{
	"Describe what you need help with, naming the technologies, frameworks or tools involved",
}

// GateResult is the gate decision for one query.
type GateResult struct {
	Specific    bool
	Reason      string
	Suggestions []string
}

// Gate rejects under-specified queries before any embedding work is spent on them.
type Gate struct {
	classifier ai.Classifier
	timeout    time.Duration
	logger     *zap.Logger
}

func NewGate(classifier ai.Classifier, timeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{classifier: classifier, timeout: timeout, logger: logger}
}

// Classify never calls the classifier for blank queries. Unreadable
// classifier output yields a not-specific result; a classifier that cannot
// be reached is a request failure.
func (g *Gate) Classify(ctx context.Context, query string) (GateResult, error) {
	const op = "matching.Gate.Classify"

	query = strings.TrimSpace(query)
	if query == "" {
		return GateResult{
			Reason:      "query is empty",
			Suggestions: append([]string(nil), emptyQuerySuggestions...),
		}, nil
	}

	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	verdict, err := g.classifier.Classify(ctx, query)
	switch {
	case errors.Is(err, apperr.ErrAmbiguityUnresolved):
		g.logger.Warn("ambiguity classifier output unusable, treating query as not specific", zap.Error(err))
		return GateResult{Reason: unusableVerdictReason, Suggestions: []string{}}, nil
	case err != nil:
		return GateResult{}, apperr.E(apperr.CodeClassifierUnavailable, op, err)
	case verdict == nil:
		g.logger.Warn("ambiguity classifier returned no verdict, treating query as not specific")
		return GateResult{Reason: unusableVerdictReason, Suggestions: []string{}}, nil
	}

	result := GateResult{Specific: verdict.Specific, Reason: verdict.Reason}
	if !verdict.Specific {
		result.Suggestions = append([]string{}, verdict.Suggestions...)
	}
	return result, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
