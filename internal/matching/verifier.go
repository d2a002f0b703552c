package matching

import (
	"context"
	"time"

	"github.com/samber/mo"

	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/vecmath"
)

// needProbeTopK bounds how many of a candidate's needs are fetched to find a usable one.
const needProbeTopK = 5

// Verifier checks that a candidate needs something the requester offers.
type Verifier struct {
	needs   index.Index
	timeout time.Duration
}

func NewVerifier(needs index.Index, timeout time.Duration) *Verifier {
	return &Verifier{needs: needs, timeout: timeout}
}

// Verify returns None when the candidate has no need on record. The
// representative need is the first one the Need Index returns for the
// candidate, probed with the requester's first offer. Its reverse score is
// the best cosine against any requester offer.
func (v *Verifier) Verify(ctx context.Context, candidateID string, offers []vecmath.Embedding) (mo.Option[Reverse], error) {
	const op = "matching.Verifier.Verify"

	if len(offers) == 0 {
		return mo.None[Reverse](), nil
	}

	ctx, cancel := withTimeout(ctx, v.timeout)
	defer cancel()

	needs, err := v.needs.Query(ctx, index.Query{
		Vector:  offers[0],
		TopK:    needProbeTopK,
		OwnerID: candidateID,
	})
	if err != nil {
		return mo.None[Reverse](), apperr.E(apperr.CodeIndexUnavailable, op, err)
	}

	for _, need := range needs {
		if need.OwnerID != candidateID || len(need.Embedding) != len(offers[0]) {
			continue
		}

		score, best, err := vecmath.BestMatch(need.Embedding, offers)
		if err != nil || best < 0 {
			continue
		}

		return mo.Some(Reverse{Score: score, NeedText: need.Text, OfferIndex: best}), nil
	}

	return mo.None[Reverse](), nil
}
