// Package index describes the nearest-neighbour store used for needs and offers.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/vecmath"
)

// DefaultTopK is used when a query does not set TopK.
const DefaultTopK = 10

var ErrEmptyEmbedding = errors.New("embedding must not be empty")

// Entry is one embedded record. Entries are never updated in place.
type Entry struct {
	ID        string
	Kind      profile.Kind
	OwnerID   string
	SkillID   string
	Text      string
	Embedding vecmath.Embedding
	CreatedAt time.Time
}

// Match is a query hit. Results are ordered by Score, highest first.
type Match struct {
	ID        string
	OwnerID   string
	Score     float64
	Text      string
	Embedding vecmath.Embedding
}

// Query asks for the TopK nearest entries to Vector. A non-empty OwnerID
// restricts the search to that owner.
type Query struct {
	Vector  vecmath.Embedding
	TopK    int
	OwnerID string
}

// Index is one logical index (need or offer).
type Index interface {
	Upsert(ctx context.Context, entries ...Entry) error
	Query(ctx context.Context, q Query) ([]Match, error)
}

// Pair groups the need and offer indices.
type Pair struct {
	Needs  Index
	Offers Index
}

// NewEntry builds an entry for the given record with a fresh id.
func NewEntry(ownerID string, record profile.Record, embedding vecmath.Embedding) (Entry, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Entry{}, errors.New("owner id is required")
	}
	if record == nil {
		return Entry{}, errors.New("record is required")
	}
	if len(embedding) == 0 {
		return Entry{}, ErrEmptyEmbedding
	}

	entry := Entry{
		ID:        NewEntryID(),
		Kind:      record.Kind(),
		OwnerID:   ownerID,
		Text:      record.Text(),
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}

	if skill, ok := record.(*profile.Skill); ok {
		entry.SkillID = SkillID(ownerID, skill.Name())
	}

	return entry, nil
}

// NewEntryID returns a random entry identifier.
func NewEntryID() string {
	return uuid.NewString()
}

// SkillID derives a stable identifier for a user's skill.
func SkillID(ownerID, skillName string) string {
	name := strings.ToLower(strings.Join(strings.Fields(skillName), "_"))
	return fmt.Sprintf("%s_skill_%s", ownerID, name)
}

// Validate checks that a query can be executed.
func (q Query) Validate() error {
	if len(q.Vector) == 0 {
		return ErrEmptyEmbedding
	}
	if q.TopK < 0 {
		return fmt.Errorf("top k must not be negative: %d", q.TopK)
	}
	return nil
}

// Limit returns TopK or the default.
func (q Query) Limit() int {
	if q.TopK <= 0 {
		return DefaultTopK
	}
	return q.TopK
}
