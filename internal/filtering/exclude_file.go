package filtering

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/matching"
)

// ExcludedCandidate is one entry of the exclude file. An empty RequesterID
// hides the candidate from everyone.
type ExcludedCandidate struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ExcludedAt  time.Time `json:"excluded_at"`
}

type ExcludedCandidates struct {
	Items []ExcludedCandidate `json:"items"`
}

// LoadExcluded reads an exclude file. A missing or empty file yields an empty list.
func LoadExcluded(path string) (*ExcludedCandidates, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return &ExcludedCandidates{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedCandidates{}, nil
	}

	var excluded ExcludedCandidates
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedCandidates) Append(items ...ExcludedCandidate) {
	e.Items = append(e.Items, items...)
}

// IDsFor returns the candidate ids hidden from requesterID.
func (e *ExcludedCandidates) IDsFor(requesterID string) map[string]struct{} {
	ids := make(map[string]struct{}, len(e.Items))
	for _, item := range e.Items {
		if item.RequesterID == "" || item.RequesterID == requesterID {
			ids[item.ID] = struct{}{}
		}
	}
	return ids
}

func (e *ExcludedCandidates) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// AppendToFile adds one exclusion to the file at path, creating it when needed.
func AppendToFile(path string, item ExcludedCandidate) error {
	excluded, err := LoadExcluded(path)
	if err != nil {
		return fmt.Errorf("read exclude file: %w", err)
	}
	if item.ExcludedAt.IsZero() {
		item.ExcludedAt = time.Now().UTC()
	}
	excluded.Append(item)
	return excluded.ToFile(path)
}

type excludeFileFilter struct {
	path string
}

// NewExcludeFile creates a filter that removes candidates listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(string) {}

func (f *excludeFileFilter) IsEnabled() bool { return true }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, matches []matching.CandidateMatch) ([]matching.CandidateMatch, Step, error) {
	initial := len(matches)
	if f.path == "" {
		return matches, Step{Initial: initial, Dropped: 0, Left: initial}, nil
	}

	excluded, err := LoadExcluded(f.path)
	if err != nil {
		return matches, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	kept, removed := exclude(matches, excluded.IDsFor(deps.RequesterID))
	if deps.Logger != nil && len(removed) > 0 {
		deps.Logger.Info("excluding candidates based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_candidates", removed),
			zap.Int("candidates_left", len(kept)),
		)
	}

	return kept, Step{Initial: initial, Dropped: len(removed), Left: len(kept)}, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
