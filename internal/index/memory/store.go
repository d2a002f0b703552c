// Package memory keeps index entries in process. Used for tests and for
// the serve command when no external index is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/vecmath"
)

// Store is a brute-force cosine index over one record kind.
type Store struct {
	kind      profile.Kind
	dimension int

	mu      sync.RWMutex
	entries []index.Entry
	byID    map[string]int
}

var _ index.Index = (*Store)(nil)

// New creates an empty store. A dimension of 0 disables the width check.
func New(kind profile.Kind, dimension int) *Store {
	return &Store{
		kind:      kind,
		dimension: dimension,
		byID:      make(map[string]int),
	}
}

// NewPair returns a need store and an offer store.
func NewPair(dimension int) index.Pair {
	return index.Pair{
		Needs:  New(profile.KindNeed, dimension),
		Offers: New(profile.KindOffer, dimension),
	}
}

// Upsert stores entries. An entry whose id already exists is left untouched.
func (s *Store) Upsert(ctx context.Context, entries ...index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, e := range entries {
		if e.Kind != s.kind {
			return fmt.Errorf("entry %s has kind %q, store holds %q", e.ID, e.Kind, s.kind)
		}
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s: %w", e.ID, index.ErrEmptyEmbedding)
		}
		if s.dimension > 0 && len(e.Embedding) != s.dimension {
			return fmt.Errorf("entry %s: %w: got %d, want %d", e.ID, vecmath.ErrDimensionMismatch, len(e.Embedding), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if _, ok := s.byID[e.ID]; ok {
			continue
		}
		e.Embedding = append(vecmath.Embedding(nil), e.Embedding...)
		s.byID[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
	}

	return nil
}

// Query scores every entry and returns the best TopK. Ties keep insertion order.
func (s *Store) Query(ctx context.Context, q index.Query) ([]index.Match, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matches := make([]index.Match, 0, len(s.entries))
	for _, e := range s.entries {
		if q.OwnerID != "" && e.OwnerID != q.OwnerID {
			continue
		}
		if len(e.Embedding) != len(q.Vector) {
			continue
		}
		score, err := vecmath.Cosine(q.Vector, e.Embedding)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		matches = append(matches, index.Match{
			ID:        e.ID,
			OwnerID:   e.OwnerID,
			Score:     score,
			Text:      e.Text,
			Embedding: append(vecmath.Embedding(nil), e.Embedding...),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit := q.Limit(); len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
