// Package expr loads gene expression datasets into memory and serves
// row subsets for clustering.
package expr

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/gene-heatmap/server/internal/logging"
)

// Meta describes a loaded dataset.
type Meta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Source   string `json:"source,omitempty"`
	NGenes   int    `json:"n_genes"`
	NSamples int    `json:"n_samples"`
}

// Dataset is an immutable gene-by-sample expression matrix with an index
// from gene symbol to row. All gene symbols are upper case. Datasets are
// loaded once at startup and only read afterwards, so access needs no
// locking.
type Dataset struct {
	meta    Meta
	genes   []string
	samples []string
	index   map[string]int
	data    *mat.Dense
}

// New builds a Dataset from per-gene value rows. Duplicate gene symbols keep
// the last occurrence; earlier rows are dropped with a warning.
func New(id, name, source string, genes, samples []string, values [][]float64) (*Dataset, error) {
	if len(genes) == 0 {
		return nil, errors.Newf("dataset %s: no genes", id)
	}
	if len(samples) == 0 {
		return nil, errors.Newf("dataset %s: no samples", id)
	}
	if len(values) != len(genes) {
		return nil, errors.Newf("dataset %s: %d value rows for %d genes", id, len(values), len(genes))
	}

	syms := make([]string, len(genes))
	drop := make([]bool, len(genes))
	seen := make(map[string]int, len(genes))
	for i, g := range genes {
		sym := strings.ToUpper(strings.TrimSpace(g))
		if sym == "" {
			return nil, errors.Newf("dataset %s: empty gene symbol at row %d", id, i)
		}
		if prev, ok := seen[sym]; ok {
			logging.Warnf("Dataset %s: duplicate gene %s, keeping last occurrence", id, sym)
			drop[prev] = true
		}
		seen[sym] = i
		syms[i] = sym
	}

	d := &Dataset{
		samples: append([]string(nil), samples...),
		index:   make(map[string]int, len(seen)),
	}
	backing := make([]float64, 0, len(seen)*len(samples))
	for i, sym := range syms {
		if drop[i] {
			continue
		}
		if len(values[i]) != len(samples) {
			return nil, errors.Newf("dataset %s: row %d has %d values for %d samples", id, i, len(values[i]), len(samples))
		}
		d.index[sym] = len(d.genes)
		d.genes = append(d.genes, sym)
		backing = append(backing, values[i]...)
	}
	d.data = mat.NewDense(len(d.genes), len(samples), backing)
	d.meta = Meta{
		ID:       id,
		Name:     name,
		Source:   source,
		NGenes:   len(d.genes),
		NSamples: len(samples),
	}
	return d, nil
}

// Meta returns the dataset metadata.
func (d *Dataset) Meta() Meta { return d.meta }

// Genes returns all gene symbols in row order. The caller must not modify
// the returned slice.
func (d *Dataset) Genes() []string { return d.genes }

// Samples returns all sample labels in column order. The caller must not
// modify the returned slice.
func (d *Dataset) Samples() []string { return d.samples }

// Lookup returns the row index of a gene symbol. The symbol is matched
// case-insensitively.
func (d *Dataset) Lookup(gene string) (int, bool) {
	idx, ok := d.index[strings.ToUpper(strings.TrimSpace(gene))]
	return idx, ok
}

// Has reports whether the dataset contains the gene.
func (d *Dataset) Has(gene string) bool {
	_, ok := d.Lookup(gene)
	return ok
}

// Rows returns the expression rows for the requested genes that exist in
// this dataset, in dataset row order. Duplicate requests collapse to one
// row, so the same gene set always yields the same matrix regardless of
// request order. The returned rows are copies; callers may mutate them
// freely.
func (d *Dataset) Rows(genes []string) (present []string, values [][]float64) {
	want := make(map[int]bool, len(genes))
	for _, g := range genes {
		if idx, ok := d.Lookup(g); ok {
			want[idx] = true
		}
	}
	for idx, g := range d.genes {
		if !want[idx] {
			continue
		}
		row := make([]float64, len(d.samples))
		copy(row, d.data.RawRowView(idx))
		present = append(present, g)
		values = append(values, row)
	}
	return present, values
}

// SearchGenes returns up to limit gene symbols with the given prefix,
// starting at offset, plus the total match count. An empty prefix matches
// every gene.
func (d *Dataset) SearchGenes(prefix string, offset, limit int) ([]string, int) {
	return SearchSymbols(d.genes, prefix, offset, limit)
}

// SearchSymbols pages through the symbols whose upper-cased form starts with
// prefix. An empty prefix matches every symbol.
func SearchSymbols(symbols []string, prefix string, offset, limit int) ([]string, int) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	var matches []string
	if prefix == "" {
		matches = symbols
	} else {
		for _, g := range symbols {
			if strings.HasPrefix(g, prefix) {
				matches = append(matches, g)
			}
		}
	}

	total := len(matches)
	if offset >= total {
		return []string{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]string, end-offset)
	copy(out, matches[offset:end])
	return out, total
}

// GeneStats summarizes one gene's expression across samples.
type GeneStats struct {
	Gene       string  `json:"gene"`
	Index      int     `json:"index"`
	NSamples   int     `json:"n_samples"`
	Expressing int     `json:"expressing_samples"`
	Mean       float64 `json:"mean_expression"`
	Max        float64 `json:"max_expression"`
	P80        float64 `json:"p80_expression"`
}

// Stats computes summary statistics for a gene. Mean and P80 are taken over
// the samples with positive expression, matching how sparse expression
// profiles are usually summarized.
func (d *Dataset) Stats(gene string) (*GeneStats, error) {
	idx, ok := d.Lookup(gene)
	if !ok {
		return nil, errors.Newf("gene not found: %s", gene)
	}
	return RowStats(d.genes[idx], idx, d.data.RawRowView(idx)), nil
}

// RowStats computes GeneStats for a single expression row. Mean and P80 are
// taken over the positive values only.
func RowStats(gene string, idx int, row []float64) *GeneStats {
	var sum, maxExpr float64
	expressing := make([]float64, 0, len(row))
	for _, v := range row {
		if v > 0 {
			sum += v
			expressing = append(expressing, v)
			if v > maxExpr {
				maxExpr = v
			}
		}
	}

	stats := &GeneStats{
		Gene:     gene,
		Index:    idx,
		NSamples: len(row),
		Max:      maxExpr,
	}
	if n := len(expressing); n > 0 {
		stats.Expressing = n
		stats.Mean = sum / float64(n)
		sort.Float64s(expressing)
		// idx = ceil(0.80*n) - 1, computed with integers.
		p := (80*n+99)/100 - 1
		if p < 0 {
			p = 0
		} else if p >= n {
			p = n - 1
		}
		stats.P80 = expressing[p]
	}
	return stats
}
