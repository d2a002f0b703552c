package ai

import "context"

// Verdict is the outcome of checking whether a need query is specific enough to match on.
type Verdict struct {
	Specific    bool
	Reason      string
	Suggestions []string
	Raw         string
}

type Classifier interface {
	Classify(ctx context.Context, query string) (*Verdict, error)
}
