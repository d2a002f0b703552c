// Package matching finds people whose offers fit a requester's need and whose
// own needs are served by what the requester offers.
package matching

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/vecmath"
)

// Status is the terminal state of one match request.
type Status string

const (
	// StatusMatched means ranking ran. Matches may still be empty.
	StatusMatched Status = "matched"
	// StatusAmbiguous means the query was too vague and Suggestions explain how to improve it.
	StatusAmbiguous Status = "ambiguous"
	// StatusNoOffersFound means the Offer Index had no candidates for the query.
	StatusNoOffersFound Status = "no_offers_found"
	// StatusNoRequesterOffers means the requester has no offers, so nothing can be verified as mutual.
	StatusNoRequesterOffers Status = "no_requester_offers"
)

// MatchRequest bundles what the pipeline needs about the requester.
// OfferTexts, when set, runs parallel to OfferEmbeddings.
type MatchRequest struct {
	RequesterID     string
	Query           string
	OfferEmbeddings []vecmath.Embedding
	OfferTexts      []string
}

func (r MatchRequest) Validate() error {
	const op = "matching.MatchRequest"

	if strings.TrimSpace(r.RequesterID) == "" {
		return apperr.Invalid(op, "requester id is required")
	}
	if len(r.OfferTexts) > 0 && len(r.OfferTexts) != len(r.OfferEmbeddings) {
		return apperr.Invalid(op, "got %d offer texts for %d offer embeddings", len(r.OfferTexts), len(r.OfferEmbeddings))
	}
	for i, e := range r.OfferEmbeddings {
		if len(e) == 0 {
			return apperr.Invalid(op, "offer embedding #%d is empty", i)
		}
		if len(e) != len(r.OfferEmbeddings[0]) {
			return apperr.Invalid(op, "offer embedding #%d: %v", i, vecmath.ErrDimensionMismatch)
		}
	}
	return nil
}

func (r MatchRequest) offerText(i int) string {
	if i < 0 || i >= len(r.OfferTexts) {
		return ""
	}
	return r.OfferTexts[i]
}

// Candidate is one deduplicated Offer Index hit.
type Candidate struct {
	ID           string
	ForwardScore float64
	OfferText    string
}

// Reverse is the result of verifying a candidate's need against the requester's offers.
type Reverse struct {
	Score    float64
	NeedText string
	// OfferIndex points at the requester offer that matched best.
	OfferIndex int
}

// Verified is a candidate that passed reverse verification, before ranking.
type Verified struct {
	Candidate
	Reverse
	RequesterOfferText string
}

// CandidateMatch is one ranked result.
type CandidateMatch struct {
	CandidateID        string  `json:"candidate_id"`
	ForwardScore       float64 `json:"forward_score"`
	ReverseScore       float64 `json:"reverse_score"`
	MutualScore        float64 `json:"mutual_score"`
	OfferText          string  `json:"offer_text,omitempty"`
	NeedText           string  `json:"need_text,omitempty"`
	RequesterOfferText string  `json:"requester_offer_text,omitempty"`
}

func (m CandidateMatch) String() string {
	return fmt.Sprintf("%s mutual=%.3f forward=%.3f reverse=%.3f", m.CandidateID, m.MutualScore, m.ForwardScore, m.ReverseScore)
}

// Outcome is what a match request ends with. Only one of Suggestions or
// Matches is meaningful, depending on Status.
type Outcome struct {
	Status      Status           `json:"status"`
	Reason      string           `json:"reason,omitempty"`
	Suggestions []string         `json:"suggestions"`
	Matches     []CandidateMatch `json:"matches"`
	// NeedRecorded reports that the query was stored as the requester's need.
	NeedRecorded bool `json:"need_recorded,omitempty"`
}

// MarshalJSON always writes suggestions and matches as lists, never null.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome

	out := plain(o)
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	if out.Matches == nil {
		out.Matches = []CandidateMatch{}
	}
	return json.Marshal(out)
}
