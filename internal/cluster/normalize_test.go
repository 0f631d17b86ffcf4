package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRows(t *testing.T) {
	m, err := NewMatrix(
		[]string{"G1"},
		[]string{"s1", "s2", "s3", "s4"},
		[][]float64{{1, 2, 3, 4}},
	)
	require.NoError(t, err)

	norm := NormalizeRows(m)
	require.NotNil(t, norm.Data)

	// mean 2.5, population std sqrt(1.25)
	std := math.Sqrt(1.25)
	want := []float64{-1.5 / std, -0.5 / std, 0.5 / std, 1.5 / std}
	got := norm.Data.RawRowView(0)
	for j := range want {
		assert.InDelta(t, want[j], got[j], 1e-12, "column %d", j)
	}

	// Every normalized row has mean 0 and population std 1.
	var sum, sumSq float64
	for _, v := range got {
		sum += v
		sumSq += v * v
	}
	n := float64(len(got))
	assert.InDelta(t, 0, sum/n, 1e-12)
	assert.InDelta(t, 1, math.Sqrt(sumSq/n), 1e-12)
}

func TestNormalizeRowsConstantRow(t *testing.T) {
	m, err := NewMatrix(
		[]string{"CONST", "VAR"},
		[]string{"s1", "s2", "s3"},
		[][]float64{{5, 5, 5}, {1, 2, 3}},
	)
	require.NoError(t, err)

	norm := NormalizeRows(m)
	for j := 0; j < 3; j++ {
		assert.Zero(t, norm.Data.At(0, j), "constant row must normalize to zeros")
	}
	assert.NotZero(t, norm.Data.At(1, 0), "varying row must not be zeroed")
}

func TestNormalizeRowsNonFiniteInput(t *testing.T) {
	m, err := NewMatrix(
		[]string{"BAD"},
		[]string{"s1", "s2", "s3"},
		[][]float64{{1, math.NaN(), 3}},
	)
	require.NoError(t, err)

	norm := NormalizeRows(m)
	for j := 0; j < 3; j++ {
		v := norm.Data.At(0, j)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "column %d must be finite", j)
	}
}

func TestNormalizeRowsDoesNotMutateInput(t *testing.T) {
	m, err := NewMatrix(
		[]string{"G1"},
		[]string{"s1", "s2"},
		[][]float64{{10, 20}},
	)
	require.NoError(t, err)

	_ = NormalizeRows(m)
	assert.Equal(t, 10.0, m.Data.At(0, 0))
	assert.Equal(t, 20.0, m.Data.At(0, 1))
}

func TestNormalizeRowsEmpty(t *testing.T) {
	norm := NormalizeRows(Matrix{})
	assert.Nil(t, norm.Data)
	assert.Empty(t, norm.Genes)
	assert.Empty(t, norm.Samples)
}
