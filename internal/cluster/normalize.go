package cluster

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// NormalizeRows z-scores each gene row independently across its samples
// using the population standard deviation, so every non-constant row comes
// out with mean 0 and standard deviation 1. Constant rows have no scale and
// normalize to all zeros instead of dividing by zero. Any non-finite result,
// for example from non-finite input values, is replaced with 0 so downstream
// distance computations always see finite numbers.
//
// The input matrix is left untouched.
func NormalizeRows(m Matrix) Matrix {
	out := Matrix{
		Genes:   cloneStrings(m.Genes),
		Samples: cloneStrings(m.Samples),
	}
	if m.Data == nil {
		return out
	}

	r, c := m.Data.Dims()
	norm := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := m.Data.RawRowView(i)
		mean, std := stat.PopMeanStdDev(row, nil)
		if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
			// NewDense zeroes its backing, so the row is already all zeros.
			continue
		}
		dst := norm.RawRowView(i)
		for j, v := range row {
			z := (v - mean) / std
			if math.IsNaN(z) || math.IsInf(z, 0) {
				z = 0
			}
			dst[j] = z
		}
	}
	out.Data = norm
	return out
}
