package matching

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spigell/skillmatch/internal/ai"
	"github.com/spigell/skillmatch/internal/apperr"
	"github.com/spigell/skillmatch/internal/index"
	"github.com/spigell/skillmatch/internal/profile"
	"github.com/spigell/skillmatch/internal/vecmath"
)

func vec(x, y float64) vecmath.Embedding {
	return vecmath.Normalize(vecmath.Embedding{float32(x), float32(y)})
}

// angled returns the unit vector whose cosine with [1,0] is c.
func angled(c float64) vecmath.Embedding {
	return vecmath.Embedding{float32(c), float32(math.Sqrt(1 - c*c))}
}

type fakeClassifier struct {
	verdict *ai.Verdict
	err     error
	calls   atomic.Int32
}

func (f *fakeClassifier) Classify(ctx context.Context, query string) (*ai.Verdict, error) {
	f.calls.Add(1)
	return f.verdict, f.err
}

func specific() *fakeClassifier {
	return &fakeClassifier{verdict: &ai.Verdict{Specific: true}}
}

type fakeGateway struct {
	mu      sync.Mutex
	vectors map[string]vecmath.Embedding
	err     error
	calls   int
}

func (f *fakeGateway) Embed(ctx context.Context, text string) (vecmath.Embedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, apperr.E(apperr.CodeEmbeddingUnavailable, "fake", f.err)
	}
	v, ok := f.vectors[text]
	if !ok {
		return vec(1, 0), nil
	}
	return v, nil
}

func (f *fakeGateway) Dimension() int { return 2 }

// flakyIndex fails queries filtered to the given owners and tracks concurrency.
type flakyIndex struct {
	index.Index
	failOwners map[string]bool
	delay      time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *flakyIndex) Query(ctx context.Context, q index.Query) ([]index.Match, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failOwners[q.OwnerID] {
		return nil, errors.New("index timeout")
	}
	return f.Index.Query(ctx, q)
}

func put(idx index.Index, kind profile.Kind, owner, text string, v vecmath.Embedding) {
	err := idx.Upsert(context.Background(), index.Entry{
		ID:        index.NewEntryID(),
		Kind:      kind,
		OwnerID:   owner,
		Text:      text,
		Embedding: v,
	})
	if err != nil {
		panic(err)
	}
}
