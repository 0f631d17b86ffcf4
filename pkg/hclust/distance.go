// Package hclust implements agglomerative hierarchical clustering over a
// precomputed pairwise distance matrix, with deterministic merge order and
// dendrogram leaf ordering.
package hclust

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// Metric computes the distance between two equal-length vectors.
type Metric interface {
	Distance(a, b []float64) float64
}

// Euclidean is the L2 metric.
type Euclidean struct{}

// Distance returns the Euclidean distance between a and b.
func (Euclidean) Distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// DistMatrix holds the pairwise distances between n observations in condensed
// form (upper triangle, row-major), the layout used by every clustering
// routine in this package.
type DistMatrix struct {
	n int
	d []float64
}

// NewDistMatrix computes all pairwise distances between the given points.
// Every point must have the same dimensionality.
func NewDistMatrix(points [][]float64, m Metric) (*DistMatrix, error) {
	n := len(points)
	if n == 0 {
		return nil, errors.New("hclust: no observations")
	}
	dim := len(points[0])
	for i, p := range points {
		if len(p) != dim {
			return nil, errors.Newf("hclust: point %d has %d dimensions, want %d", i, len(p), dim)
		}
	}

	dm := &DistMatrix{
		n: n,
		d: make([]float64, n*(n-1)/2),
	}
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dm.d[k] = m.Distance(points[i], points[j])
			k++
		}
	}
	return dm, nil
}

// Len returns the number of observations.
func (dm *DistMatrix) Len() int { return dm.n }

// At returns the distance between observations i and j. The diagonal is zero.
func (dm *DistMatrix) At(i, j int) float64 {
	if i == j {
		return 0
	}
	if i > j {
		i, j = j, i
	}
	// Condensed index of (i, j) with i < j.
	return dm.d[i*(2*dm.n-i-1)/2+(j-i-1)]
}
