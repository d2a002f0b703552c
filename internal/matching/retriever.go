package matching

import (
	"context"
	"time"

	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/vecmath"
)

// Retriever finds candidates in the Offer Index.
type Retriever struct {
	offers  index.Index
	timeout time.Duration
}

func NewRetriever(offers index.Index, timeout time.Duration) *Retriever {
	return &Retriever{offers: offers, timeout: timeout}
}

// Retrieve returns at most one candidate per owner, in index order, never the requester.
func (r *Retriever) Retrieve(ctx context.Context, needEmbedding vecmath.Embedding, requesterID string, topK int) ([]Candidate, error) {
	const op = "matching.Retriever.Retrieve"

	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	matches, err := r.offers.Query(ctx, index.Query{Vector: needEmbedding, TopK: topK})
	if err != nil {
		return nil, apperr.E(apperr.CodeIndexUnavailable, op, err)
	}

	return dedupe(matches, requesterID), nil
}

func dedupe(matches []index.Match, requesterID string) []Candidate {
	seen := make(map[string]struct{}, len(matches))
	out := make([]Candidate, 0, len(matches))

	for _, m := range matches {
		if m.OwnerID == "" || m.OwnerID == requesterID {
			continue
		}
		if _, ok := seen[m.OwnerID]; ok {
			continue
		}
		seen[m.OwnerID] = struct{}{}
		out = append(out, Candidate{ID: m.OwnerID, ForwardScore: m.Score, OfferText: m.Text})
	}

	return out
}
