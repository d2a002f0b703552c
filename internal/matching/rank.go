package matching

import "sort"

// DefaultThreshold is the mutual score a candidate has to exceed.
const DefaultThreshold = 0.5

// MutualScore averages the forward and reverse similarities.
func MutualScore(forward, reverse float64) float64 {
	return (forward + reverse) / 2
}

// Rank drops candidates whose mutual score is at or below threshold and
// sorts the rest by mutual score, keeping input order on ties.
func Rank(verified []Verified, threshold float64) []CandidateMatch {
	out := make([]CandidateMatch, 0, len(verified))

	for _, v := range verified {
		mutual := MutualScore(v.ForwardScore, v.Reverse.Score)
		if mutual <= threshold {
			continue
		}
		out = append(out, CandidateMatch{
			CandidateID:  v.Candidate.ID,
			ForwardScore: v.ForwardScore,
			ReverseScore: v.Reverse.Score,
			MutualScore:  mutual,
			OfferText:    v.OfferText,
			NeedText:     v.NeedText,

			RequesterOfferText: v.RequesterOfferText,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MutualScore > out[j].MutualScore
	})

	return out
}
