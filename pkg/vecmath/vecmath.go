// Package vecmath provides pure vector operations used by the matching pipeline
// (L2 normalization, dot-product similarity, centroid pooling). No I/O.
package vecmath

import (
	"fmt"
	"math"
)

// epsilon guards the normalization divisor so an all-zero vector stays finite.
const epsilon = 1e-12

// ErrDimensionMismatch is returned when two vectors of different lengths are compared.
var ErrDimensionMismatch = fmt.Errorf("vecmath: dimension mismatch")

// Normalize returns v scaled to unit L2 norm. The input is not modified.
// An all-zero vector is returned as an all-zero copy rather than producing NaNs.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))

	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude < epsilon {
		copy(out, v)

		return out
	}

	for i, x := range v {
		out[i] = float32(float64(x) / magnitude)
	}

	return out
}

// CosineSimilarity returns the dot product of a and b as given. Both query and
// reference vectors in the pipeline are pre-normalized, which makes the dot
// product equal to the cosine of the angle between them; callers that want a
// true cosine over raw vectors must normalize first.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}

	return dot, nil
}

// MeanPooled returns the normalized element-wise mean of the normalized input
// vectors (the centroid used as a strain's representative embedding).
// Returns nil when vectors is empty. The result is order independent.
// Vectors whose length differs from the first vector are ignored.
func MeanPooled(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	count := 0

	for _, v := range vectors {
		if len(v) != dim {
			continue
		}

		n := Normalize(v)
		for i, x := range n {
			sum[i] += float64(x)
		}

		count++
	}

	if count == 0 {
		return nil
	}

	mean := make([]float32, dim)
	for i, s := range sum {
		mean[i] = float32(s / float64(count))
	}

	return Normalize(mean)
}
