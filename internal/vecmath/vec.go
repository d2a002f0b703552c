package vecmath

import (
	"errors"
	"math"
)

// DefaultDimension is the embedding width produced by the supported models.
const DefaultDimension = 768

// Embedding is a fixed-length vector representation of text.
type Embedding []float32

var ErrDimensionMismatch = errors.New("vector dimensions don't match")

// Dot calculates the dot product of two vectors.
func Dot(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var result float64
	for i := range a {
		result += float64(a[i]) * float64(b[i])
	}

	return result, nil
}

// Norm calculates the Euclidean length (L2 norm) of the vector.
func Norm(v Embedding) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine of the angle between a and b, clamped to [-1, 1].
// A zero-length vector on either side yields 0.
func Cosine(a, b Embedding) (float64, error) {
	dot, err := Dot(a, b)
	if err != nil {
		return 0, err
	}

	normA := Norm(a)
	normB := Norm(b)
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return clamp(dot / (normA * normB)), nil
}

// Normalize returns a unit-length copy of v. The zero vector is returned as a zero copy.
func Normalize(v Embedding) Embedding {
	out := make(Embedding, len(v))
	n := Norm(v)
	if n == 0 {
		return out
	}
	for i, val := range v {
		out[i] = float32(float64(val) / n)
	}
	return out
}

// IsNormalized reports whether v has unit length within tol.
func IsNormalized(v Embedding, tol float64) bool {
	return math.Abs(Norm(v)-1) <= tol
}

// BestMatch compares target against every candidate and returns the highest
// cosine similarity and its index. idx is -1 when candidates is empty.
func BestMatch(target Embedding, candidates []Embedding) (score float64, idx int, err error) {
	idx = -1
	for i, candidate := range candidates {
		sim, err := Cosine(target, candidate)
		if err != nil {
			return 0, -1, err
		}
		if idx == -1 || sim > score {
			score = sim
			idx = i
		}
	}
	return score, idx, nil
}

// FromFloat64 converts a float64 slice returned by some providers.
func FromFloat64(values []float64) Embedding {
	out := make(Embedding, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
