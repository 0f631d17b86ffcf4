package cluster

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/gene-heatmap/server/pkg/hclust"
)

// Dendrogram describes the clustering of one axis: axis labels in leaf
// order, the leaf permutation relative to the input axis, and the merge
// sequence that built the tree.
type Dendrogram struct {
	Labels []string       `json:"labels"`
	Order  []int          `json:"order"`
	Merges []hclust.Merge `json:"merges"`
}

// Result is the visualization-ready output of a pipeline run: the normalized
// matrix with rows and columns permuted into dendrogram leaf order, the
// permuted labels, and one dendrogram per clustered axis. A dendrogram is
// nil when its axis had fewer than two items, in which case that axis keeps
// its input order.
type Result struct {
	Data          [][]float64 `json:"data"`
	Genes         []string    `json:"genes"`
	Samples       []string    `json:"samples"`
	RowDendrogram *Dendrogram `json:"row_dendrogram"`
	ColDendrogram *Dendrogram `json:"col_dendrogram"`
}

// Options tunes a pipeline run.
type Options struct {
	// Method selects the linkage criterion. The zero value is average
	// linkage.
	Method hclust.Method

	// OnPhase, when set, is called from the calling goroutine as each
	// stage begins: "normalizing", "clustering_rows", "clustering_cols",
	// "reordering".
	OnPhase func(phase string)
}

func (o Options) phase(name string) {
	if o.OnPhase != nil {
		o.OnPhase(name)
	}
}

// Run executes the full pipeline on m: validate, normalize rows, cluster
// genes and samples with the configured linkage over Euclidean distances,
// and reorder. The call is pure; concurrent runs share no state.
// Cancellation is honored between stages only, a stage in flight always
// completes.
func Run(ctx context.Context, m Matrix, opts Options) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "clustering cancelled")
	}

	opts.phase("normalizing")
	norm := NormalizeRows(m)
	rowTree, colTree, err := clusterAxes(ctx, norm, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "clustering cancelled")
	}
	opts.phase("reordering")
	return Reorder(norm, rowTree, colTree), nil
}

// ClusterAxes clusters the rows and the columns of a normalized matrix
// independently, rows as points in sample space and columns as points in
// gene space. The two axes are computed concurrently. An axis with fewer
// than two items is skipped and reported as a nil tree.
func ClusterAxes(ctx context.Context, m Matrix, method hclust.Method) (rowTree, colTree *hclust.Tree, err error) {
	return clusterAxes(ctx, m, Options{Method: method})
}

func clusterAxes(ctx context.Context, m Matrix, opts Options) (rowTree, colTree *hclust.Tree, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "clustering cancelled")
	}
	if m.Data == nil {
		return nil, nil, nil
	}

	r, c := m.Data.Dims()
	var wg sync.WaitGroup
	var rowErr, colErr error
	if r >= 2 {
		opts.phase("clustering_rows")
		wg.Add(1)
		go func() {
			defer wg.Done()
			rowTree, rowErr = clusterPoints(rowPoints(m.Data), opts.Method)
		}()
	}
	if c >= 2 {
		opts.phase("clustering_cols")
		wg.Add(1)
		go func() {
			defer wg.Done()
			colTree, colErr = clusterPoints(colPoints(m.Data), opts.Method)
		}()
	}
	wg.Wait()

	if rowErr != nil {
		return nil, nil, errors.Wrap(rowErr, "clustering rows")
	}
	if colErr != nil {
		return nil, nil, errors.Wrap(colErr, "clustering columns")
	}
	return rowTree, colTree, nil
}

// Reorder permutes the matrix and its labels into dendrogram leaf order and
// packages the per-axis dendrograms. A nil tree leaves that axis in input
// order with no dendrogram, so degenerate shapes still produce a complete,
// well-formed result.
func Reorder(m Matrix, rowTree, colTree *hclust.Tree) *Result {
	rowOrder := axisOrder(rowTree, m.Rows())
	colOrder := axisOrder(colTree, m.Cols())

	genes := applyOrder(m.Genes, rowOrder)
	samples := applyOrder(m.Samples, colOrder)

	data := make([][]float64, len(rowOrder))
	for oi, ri := range rowOrder {
		row := make([]float64, len(colOrder))
		if m.Data != nil {
			src := m.Data.RawRowView(ri)
			for oj, cj := range colOrder {
				row[oj] = src[cj]
			}
		}
		data[oi] = row
	}

	res := &Result{
		Data:    data,
		Genes:   genes,
		Samples: samples,
	}
	if rowTree != nil {
		res.RowDendrogram = &Dendrogram{Labels: genes, Order: rowOrder, Merges: rowTree.Merges}
	}
	if colTree != nil {
		res.ColDendrogram = &Dendrogram{Labels: samples, Order: colOrder, Merges: colTree.Merges}
	}
	return res
}

func axisOrder(t *hclust.Tree, n int) []int {
	if t != nil {
		return t.LeafOrder()
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func applyOrder(labels []string, order []int) []string {
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = labels[idx]
	}
	return out
}

func clusterPoints(points [][]float64, method hclust.Method) (*hclust.Tree, error) {
	dm, err := hclust.NewDistMatrix(points, hclust.Euclidean{})
	if err != nil {
		return nil, err
	}
	return hclust.Cluster(dm, method)
}

// rowPoints exposes each row as a point without copying; hclust only reads.
func rowPoints(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	pts := make([][]float64, r)
	for i := range pts {
		pts[i] = d.RawRowView(i)
	}
	return pts
}

func colPoints(d *mat.Dense) [][]float64 {
	_, c := d.Dims()
	pts := make([][]float64, c)
	for j := range pts {
		pts[j] = mat.Col(nil, j, d)
	}
	return pts
}
