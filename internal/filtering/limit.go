package filtering

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spigell/skillmatch/internal/matching"
)

type limitFilter struct {
	disabled bool
	reason   string
	limit    int
}

// NewLimit creates a filter that keeps at most Config.Limit results. Zero keeps everything.
func NewLimit() Filter {
	return &limitFilter{}
}

func (f *limitFilter) Name() string { return "limit" }

func (f *limitFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *limitFilter) IsEnabled() bool { return !f.disabled }

func (f *limitFilter) Validate(cfg *Config) error {
	f.limit = 0
	if cfg == nil {
		return nil
	}
	if cfg.Limit < 0 {
		return fmt.Errorf("limit must not be negative: %d", cfg.Limit)
	}
	f.limit = cfg.Limit
	return nil
}

func (f *limitFilter) Apply(_ context.Context, _ Deps, matches []matching.CandidateMatch) ([]matching.CandidateMatch, Step, error) {
	initial := len(matches)
	if f.limit == 0 || initial <= f.limit {
		return matches, Step{Initial: initial, Left: initial}, nil
	}
	return matches[:f.limit], Step{Initial: initial, Dropped: initial - f.limit, Left: f.limit}, nil
}

func (f *limitFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"limit": strconv.Itoa(f.limit)},
	}
}
