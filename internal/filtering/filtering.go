// Package filtering applies post-ranking steps to match results. Steps may
// drop results but never reorder them.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/matching"
)

// Filter represents a single filtering step applied to ranked matches.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, matches []matching.CandidateMatch) ([]matching.CandidateMatch, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger      *zap.Logger
	RequesterID string
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	ExcludeFile string
	Limit       int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

type statusProvider interface {
	Status() Status
}

// Default returns the standard pipeline.
func Default() []Filter {
	return []Filter{NewExcludeFile(), NewLimit()}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run validates every enabled step, then applies them in order.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, matches []matching.CandidateMatch) ([]matching.CandidateMatch, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, deps, matches)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		deps.Logger.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		matches = next
	}

	return matches, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

func exclude(matches []matching.CandidateMatch, ids map[string]struct{}) ([]matching.CandidateMatch, []string) {
	kept := make([]matching.CandidateMatch, 0, len(matches))
	var removed []string
	for _, m := range matches {
		if _, ok := ids[m.CandidateID]; ok {
			removed = append(removed, m.CandidateID)
			continue
		}
		kept = append(kept, m)
	}
	return kept, removed
}

// FilterOutcome runs the steps over the matches of a matched outcome. Other outcomes are left as is.
func FilterOutcome(ctx context.Context, cfg *Config, deps Deps, steps []Filter, outcome *matching.Outcome) error {
	if outcome == nil || outcome.Status != matching.StatusMatched || len(outcome.Matches) == 0 {
		return nil
	}

	filtered, err := Run(ctx, cfg, deps, steps, outcome.Matches)
	if err != nil {
		return err
	}

	outcome.Matches = filtered
	return nil
}
