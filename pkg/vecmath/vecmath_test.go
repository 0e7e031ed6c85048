package vecmath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}

	return math.Sqrt(s)
}

func TestNormalize(t *testing.T) {
	t.Run("unit vector unchanged", func(t *testing.T) {
		v := Normalize([]float32{1, 0, 0})
		assert.InDelta(t, 1, v[0], 1e-6)
		assert.InDelta(t, 0, v[1], 1e-6)
	})

	t.Run("normalizes to unit length", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		// 3-4-5 triangle => (0.6, 0.8)
		assert.InDelta(t, 0.6, v[0], 1e-5)
		assert.InDelta(t, 0.8, v[1], 1e-5)
		assert.InDelta(t, 1, norm(v), 1e-5)
	})

	t.Run("zero vector stays finite", func(t *testing.T) {
		v := Normalize([]float32{0, 0, 0})
		for i := range v {
			assert.False(t, math.IsNaN(float64(v[i])), "index %d is NaN", i)
			assert.InDelta(t, 0, v[i], 1e-9)
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		in := []float32{3, 4}
		Normalize(in)
		assert.Equal(t, []float32{3, 4}, in)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("symmetry", func(t *testing.T) {
		a := []float32{0.2, 0.5, -0.3}
		b := []float32{-0.1, 0.9, 0.4}

		ab, err := CosineSimilarity(a, b)
		require.NoError(t, err)
		ba, err := CosineSimilarity(b, a)
		require.NoError(t, err)

		assert.InDelta(t, ab, ba, 1e-12)
	})

	t.Run("orthogonal unit vectors score zero", func(t *testing.T) {
		s, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 0, s, 1e-9)
	})

	t.Run("identical unit vectors score one", func(t *testing.T) {
		v := Normalize([]float32{2, 3, 6})
		s, err := CosineSimilarity(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 1, s, 1e-5)
	})
}

func TestMeanPooled(t *testing.T) {
	t.Run("empty input returns nil", func(t *testing.T) {
		assert.Nil(t, MeanPooled(nil))
		assert.Nil(t, MeanPooled([][]float32{}))
	})

	t.Run("single vector equals its normalization", func(t *testing.T) {
		pooled := MeanPooled([][]float32{{3, 4}})
		want := Normalize([]float32{3, 4})
		for i := range want {
			assert.InDelta(t, want[i], pooled[i], 1e-6)
		}
	})

	t.Run("centroid of two unit axes", func(t *testing.T) {
		pooled := MeanPooled([][]float32{{1, 0, 0}, {0, 1, 0}})
		// mean is (0.5, 0.5, 0) which re-normalizes to (0.707, 0.707, 0)
		assert.InDelta(t, 1/math.Sqrt2, pooled[0], 1e-5)
		assert.InDelta(t, 1/math.Sqrt2, pooled[1], 1e-5)
		assert.InDelta(t, 0, pooled[2], 1e-9)
		assert.InDelta(t, 1, norm(pooled), 1e-5)
	})

	t.Run("order independent", func(t *testing.T) {
		a := MeanPooled([][]float32{{1, 0}, {0.5, 0.5}, {0, 1}})
		b := MeanPooled([][]float32{{0, 1}, {1, 0}, {0.5, 0.5}})
		for i := range a {
			assert.InDelta(t, a[i], b[i], 1e-6)
		}
	})

	t.Run("mismatched lengths are ignored", func(t *testing.T) {
		pooled := MeanPooled([][]float32{{1, 0}, {0, 0, 1}})
		want := Normalize([]float32{1, 0})
		require.Len(t, pooled, 2)
		for i := range want {
			assert.InDelta(t, want[i], pooled[i], 1e-6)
		}
	})
}
