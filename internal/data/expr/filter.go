package expr

import "gonum.org/v1/gonum/mat"

// Filter returns a new Dataset keeping only the gene rows for which keep
// returns true. The values slice passed to keep is a read-only view.
func (d *Dataset) Filter(keep func(gene string, values []float64) bool) (*Dataset, error) {
	var genes []string
	var values [][]float64
	for i, g := range d.genes {
		row := d.data.RawRowView(i)
		if !keep(g, row) {
			continue
		}
		cp := make([]float64, len(row))
		copy(cp, row)
		genes = append(genes, g)
		values = append(values, cp)
	}
	return New(d.meta.ID, d.meta.Name, d.meta.Source, genes, d.samples, values)
}

// FilterSamples returns a new Dataset keeping only the sample columns for
// which keep returns true. The values slice passed to keep is that sample's
// column.
func (d *Dataset) FilterSamples(keep func(sample string, values []float64) bool) (*Dataset, error) {
	var keptIdx []int
	var samples []string
	col := make([]float64, len(d.genes))
	for j, s := range d.samples {
		mat.Col(col, j, d.data)
		if !keep(s, col) {
			continue
		}
		keptIdx = append(keptIdx, j)
		samples = append(samples, s)
	}

	values := make([][]float64, len(d.genes))
	for i := range d.genes {
		src := d.data.RawRowView(i)
		row := make([]float64, len(keptIdx))
		for k, j := range keptIdx {
			row[k] = src[j]
		}
		values[i] = row
	}
	return New(d.meta.ID, d.meta.Name, d.meta.Source, append([]string(nil), d.genes...), samples, values)
}
