package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/skillmatch/internal/ai"
	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/embedding"
	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/logger"
	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/vecmath"
)

const (
	DefaultTopK = 5
	// maxStoredOffers bounds how many offers are loaded for a requester in MatchStored.
	maxStoredOffers = 50
)

type Config struct {
	TopK      int
	Threshold float64
	// RecordNeedOnEmpty stores the query as the requester's need when no
	// match is possible, so later requesters can find them.
	RecordNeedOnEmpty bool
	IndexTimeout      time.Duration
	ClassifyTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		TopK:              DefaultTopK,
		Threshold:         DefaultThreshold,
		RecordNeedOnEmpty: true,
		IndexTimeout:      5 * time.Second,
		ClassifyTimeout:   15 * time.Second,
	}
}

// Deps are the external collaborators of the engine.
type Deps struct {
	Gateway    embedding.Gateway
	Indices    index.Pair
	Classifier ai.Classifier
	Logger     *zap.Logger
}

// Engine runs the full pipeline: gate, embed, retrieve, verify, rank.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	cfg       Config
	gateway   embedding.Gateway
	indices   index.Pair
	gate      *Gate
	retriever *Retriever
	verifier  *Verifier
	logger    *zap.Logger
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	switch {
	case deps.Gateway == nil:
		return nil, errors.New("embedding gateway is required")
	case deps.Indices.Needs == nil || deps.Indices.Offers == nil:
		return nil, errors.New("need and offer indices are required")
	case deps.Classifier == nil:
		return nil, errors.New("ambiguity classifier is required")
	}

	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		cfg:       cfg,
		gateway:   deps.Gateway,
		indices:   deps.Indices,
		gate:      NewGate(deps.Classifier, cfg.ClassifyTimeout, log),
		retriever: NewRetriever(deps.Indices.Offers, cfg.IndexTimeout),
		verifier:  NewVerifier(deps.Indices.Needs, cfg.IndexTimeout),
		logger:    log,
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Match runs the pipeline with the requester's offers supplied by the caller.
func (e *Engine) Match(ctx context.Context, req MatchRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return e.run(ctx, req.RequesterID, req.Query, func(context.Context, vecmath.Embedding) (MatchRequest, error) {
		return req, nil
	})
}

// MatchStored loads the requester's offers from the Offer Index, then runs the pipeline.
func (e *Engine) MatchStored(ctx context.Context, requesterID, query string) (*Outcome, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return nil, apperr.Invalid("matching.Engine.MatchStored", "requester id is required")
	}

	return e.run(ctx, requesterID, query, func(ctx context.Context, probe vecmath.Embedding) (MatchRequest, error) {
		return e.loadOffers(ctx, requesterID, query, probe)
	})
}

type requestLoader func(ctx context.Context, needEmbedding vecmath.Embedding) (MatchRequest, error)

func (e *Engine) run(ctx context.Context, requesterID, query string, load requestLoader) (*Outcome, error) {
	const op = "matching.Engine.Match"

	log := logger.WithFields(e.logger, logger.MatchFields(requesterID, "")...)
	started := time.Now()

	verdict, err := e.gate.Classify(ctx, query)
	if err != nil {
		return nil, err
	}
	if !verdict.Specific {
		log.Info("query is ambiguous", zap.String("reason", verdict.Reason), zap.Int("suggestions", len(verdict.Suggestions)))
		return &Outcome{Status: StatusAmbiguous, Reason: verdict.Reason, Suggestions: verdict.Suggestions, Matches: []CandidateMatch{}}, nil
	}

	needEmbedding, err := e.gateway.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	req, err := load(ctx, needEmbedding)
	if err != nil {
		return nil, err
	}

	if len(req.OfferEmbeddings) == 0 {
		log.Info("requester has no offers")
		out := &Outcome{Status: StatusNoRequesterOffers, Matches: []CandidateMatch{}}
		out.NeedRecorded = e.recordNeed(ctx, log, requesterID, query, needEmbedding)
		return out, nil
	}

	candidates, err := e.retriever.Retrieve(ctx, needEmbedding, requesterID, e.cfg.TopK)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		log.Info("no candidate offers found")
		out := &Outcome{Status: StatusNoOffersFound, Matches: []CandidateMatch{}}
		out.NeedRecorded = e.recordNeed(ctx, log, requesterID, query, needEmbedding)
		return out, nil
	}

	verified, err := e.verifyAll(ctx, log, req, candidates)
	if err != nil {
		return nil, apperr.E(apperr.CodeInternal, op, err)
	}

	matches := Rank(verified, e.cfg.Threshold)

	log.Info("match finished",
		zap.Int("candidates", len(candidates)),
		zap.Int("verified", len(verified)),
		zap.Int("ranked", len(matches)),
		zap.Duration("took", time.Since(started)),
	)

	return &Outcome{Status: StatusMatched, Matches: matches}, nil
}

// verifyAll checks candidates concurrently, at most TopK at a time. A failing
// candidate is dropped. Results keep retrieval order.
func (e *Engine) verifyAll(ctx context.Context, log *zap.Logger, req MatchRequest, candidates []Candidate) ([]Verified, error) {
	results := make([]mo.Option[Verified], len(candidates))

	var g errgroup.Group
	g.SetLimit(max(1, min(e.cfg.TopK, len(candidates))))

	for i, c := range candidates {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			rev, err := e.verifier.Verify(ctx, c.ID, req.OfferEmbeddings)
			if err != nil {
				log.Warn("candidate verification failed, excluding",
					append(logger.MatchFields("", c.ID), zap.Error(err))...)
				return nil
			}

			reverse, ok := rev.Get()
			if !ok {
				log.Debug("candidate has no need on record, excluding", logger.MatchFields("", c.ID)...)
				return nil
			}

			results[i] = mo.Some(Verified{
				Candidate:          c,
				Reverse:            reverse,
				RequesterOfferText: req.offerText(reverse.OfferIndex),
			})
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verification abandoned: %w", err)
	}

	verified := make([]Verified, 0, len(candidates))
	for _, r := range results {
		if v, ok := r.Get(); ok {
			verified = append(verified, v)
		}
	}

	return verified, nil
}

func (e *Engine) loadOffers(ctx context.Context, requesterID, query string, probe vecmath.Embedding) (MatchRequest, error) {
	const op = "matching.Engine.loadOffers"

	ctx, cancel := withTimeout(ctx, e.cfg.IndexTimeout)
	defer cancel()

	offers, err := e.indices.Offers.Query(ctx, index.Query{Vector: probe, TopK: maxStoredOffers, OwnerID: requesterID})
	if err != nil {
		return MatchRequest{}, apperr.E(apperr.CodeIndexUnavailable, op, err)
	}

	req := MatchRequest{RequesterID: requesterID, Query: query}
	for _, o := range offers {
		if o.OwnerID != requesterID || len(o.Embedding) != len(probe) {
			continue
		}
		req.OfferEmbeddings = append(req.OfferEmbeddings, o.Embedding)
		req.OfferTexts = append(req.OfferTexts, o.Text)
	}

	return req, nil
}

// recordNeed stores the query as a need when the policy allows it. Failures are logged only.
func (e *Engine) recordNeed(ctx context.Context, log *zap.Logger, requesterID, query string, needEmbedding vecmath.Embedding) bool {
	if !e.cfg.RecordNeedOnEmpty {
		return false
	}

	need, err := profile.NewNeed(query)
	if err != nil {
		return false
	}

	if _, err := e.storeRecord(ctx, requesterID, need, needEmbedding); err != nil {
		log.Warn("could not record need", zap.Error(err))
		return false
	}

	log.Info("recorded query as need")
	return true
}

// SubmitNeed embeds and stores one need for userID.
func (e *Engine) SubmitNeed(ctx context.Context, userID, text string) (index.Entry, error) {
	const op = "matching.Engine.SubmitNeed"

	if strings.TrimSpace(userID) == "" {
		return index.Entry{}, apperr.Invalid(op, "user id is required")
	}

	need, err := profile.NewNeed(text)
	if err != nil {
		return index.Entry{}, apperr.E(apperr.CodeInputInvalid, op, err)
	}

	vec, err := e.gateway.Embed(ctx, need.Text())
	if err != nil {
		return index.Entry{}, err
	}

	return e.storeRecord(ctx, userID, need, vec)
}

// SubmitOffers embeds every skill and stores them for userID in one upsert.
func (e *Engine) SubmitOffers(ctx context.Context, userID string, skills []*profile.Skill) ([]index.Entry, error) {
	const op = "matching.Engine.SubmitOffers"

	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Invalid(op, "user id is required")
	}
	if len(skills) == 0 {
		return nil, apperr.Invalid(op, "at least one skill is required")
	}

	entries := make([]index.Entry, 0, len(skills))
	for _, skill := range skills {
		if skill == nil {
			return nil, apperr.Invalid(op, "skill must not be nil")
		}

		vec, err := e.gateway.Embed(ctx, skill.Text())
		if err != nil {
			return nil, err
		}

		entry, err := index.NewEntry(userID, skill, vec)
		if err != nil {
			return nil, apperr.E(apperr.CodeInputInvalid, op, err)
		}
		entries = append(entries, entry)
	}

	if err := e.upsert(ctx, e.indices.Offers, entries...); err != nil {
		return nil, apperr.E(apperr.CodeIndexUnavailable, op, err)
	}

	e.logger.Info("offers stored", append(logger.MatchFields(userID, ""), zap.Int("count", len(entries)))...)
	return entries, nil
}

func (e *Engine) storeRecord(ctx context.Context, userID string, record profile.Record, vec vecmath.Embedding) (index.Entry, error) {
	const op = "matching.Engine.storeRecord"

	entry, err := index.NewEntry(userID, record, vec)
	if err != nil {
		return index.Entry{}, apperr.E(apperr.CodeInputInvalid, op, err)
	}

	target := e.indices.Offers
	if record.Kind() == profile.KindNeed {
		target = e.indices.Needs
	}

	if err := e.upsert(ctx, target, entry); err != nil {
		return index.Entry{}, apperr.E(apperr.CodeIndexUnavailable, op, err)
	}

	return entry, nil
}

func (e *Engine) upsert(ctx context.Context, idx index.Index, entries ...index.Entry) error {
	ctx, cancel := withTimeout(ctx, e.cfg.IndexTimeout)
	defer cancel()
	return idx.Upsert(ctx, entries...)
}
