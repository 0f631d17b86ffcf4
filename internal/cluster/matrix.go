// Package cluster implements the expression clustering pipeline: per-gene
// z-score normalization, hierarchical clustering of genes and samples, and
// dendrogram-ordered matrix reordering.
package cluster

import (
	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch reports a matrix whose dimensions and label lists
// disagree. Inputs are validated up front rather than trusted.
var ErrShapeMismatch = errors.New("cluster: matrix shape mismatch")

// Matrix is a labeled gene-by-sample expression matrix. Data is nil if and
// only if the matrix has no rows or no columns; every label list always
// reflects the logical shape. The pipeline never mutates a Matrix it is
// given and never returns one that shares backing storage with its input
// labels.
type Matrix struct {
	Genes   []string
	Samples []string
	Data    *mat.Dense
}

// NewMatrix builds a Matrix from per-gene value rows. Each row must have one
// value per sample. An empty gene or sample list yields a Matrix with nil
// Data.
func NewMatrix(genes, samples []string, values [][]float64) (Matrix, error) {
	if len(values) != len(genes) {
		return Matrix{}, errors.Wrapf(ErrShapeMismatch, "%d value rows for %d genes", len(values), len(genes))
	}
	m := Matrix{
		Genes:   cloneStrings(genes),
		Samples: cloneStrings(samples),
	}
	if len(genes) == 0 || len(samples) == 0 {
		return m, nil
	}
	backing := make([]float64, 0, len(genes)*len(samples))
	for i, row := range values {
		if len(row) != len(samples) {
			return Matrix{}, errors.Wrapf(ErrShapeMismatch, "row %d has %d values for %d samples", i, len(row), len(samples))
		}
		backing = append(backing, row...)
	}
	m.Data = mat.NewDense(len(genes), len(samples), backing)
	return m, nil
}

// Validate checks that dimensions and label counts agree.
func (m Matrix) Validate() error {
	if m.Data == nil {
		if len(m.Genes) > 0 && len(m.Samples) > 0 {
			return errors.Wrapf(ErrShapeMismatch, "nil data for %d genes x %d samples", len(m.Genes), len(m.Samples))
		}
		return nil
	}
	r, c := m.Data.Dims()
	if r != len(m.Genes) || c != len(m.Samples) {
		return errors.Wrapf(ErrShapeMismatch, "data is %dx%d, labels are %dx%d", r, c, len(m.Genes), len(m.Samples))
	}
	return nil
}

// Rows returns the number of genes.
func (m Matrix) Rows() int { return len(m.Genes) }

// Cols returns the number of samples.
func (m Matrix) Cols() int { return len(m.Samples) }

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
