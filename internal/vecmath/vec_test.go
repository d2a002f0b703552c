package vecmath

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-6

func TestCosine(t *testing.T) {
	tests := []struct {
		name    string
		a       Embedding
		b       Embedding
		want    float64
		wantErr error
	}{
		{name: "identical", a: Embedding{1, 0, 0}, b: Embedding{1, 0, 0}, want: 1},
		{name: "orthogonal", a: Embedding{1, 0}, b: Embedding{0, 1}, want: 0},
		{name: "opposite", a: Embedding{0, 1, 0}, b: Embedding{0, -1, 0}, want: -1},
		{name: "unnormalized", a: Embedding{3, 0}, b: Embedding{10, 0}, want: 1},
		{name: "zero norm", a: Embedding{1, 0}, b: Embedding{0, 0}, want: 0},
		{name: "dimension mismatch", a: Embedding{1, 0}, b: Embedding{0, 1, 0}, wantErr: ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, eps)
		})
	}
}

func TestCosineBoundsOnRandomUnitVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		a := Normalize(randomEmbedding(rng, DefaultDimension))
		b := Normalize(randomEmbedding(rng, DefaultDimension))

		self, err := Cosine(a, a)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, self, eps)

		sim, err := Cosine(a, b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, sim, -1.0)
		assert.LessOrEqual(t, sim, 1.0)

		dot, err := Dot(a, b)
		require.NoError(t, err)
		assert.InDelta(t, sim, dot, 1e-5, "dot equals cosine for unit vectors")
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize(Embedding{3, 4})
	assert.InDelta(t, 0.6, v[0], eps)
	assert.InDelta(t, 0.8, v[1], eps)
	assert.True(t, IsNormalized(v, eps))

	zero := Normalize(Embedding{0, 0, 0})
	assert.Equal(t, Embedding{0, 0, 0}, zero)
	assert.False(t, IsNormalized(zero, eps))
}

func TestBestMatch(t *testing.T) {
	offers := []Embedding{{1, 0}, {0, 1}}

	score, idx, err := BestMatch(Embedding{0.9, 0.1}, offers)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Greater(t, score, 0.99)

	score, idx, err = BestMatch(Embedding{1, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	assert.Zero(t, score)

	_, _, err = BestMatch(Embedding{1, 0, 0}, offers)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func randomEmbedding(rng *rand.Rand, dim int) Embedding {
	v := make(Embedding, dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}
