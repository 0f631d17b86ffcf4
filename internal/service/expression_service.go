// Package service provides business logic for the expression server.
package service

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/gene-heatmap/server/internal/cache"
	"github.com/gene-heatmap/server/internal/cluster"
	"github.com/gene-heatmap/server/internal/data/expr"
	"github.com/gene-heatmap/server/internal/data/exprdb"
	"github.com/gene-heatmap/server/internal/render"
	"github.com/gene-heatmap/server/pkg/hclust"
)

// ErrNoGenes indicates that none of the requested genes exist in the
// dataset.
var ErrNoGenes = errors.New("none of the requested genes are in the dataset")

// Source is the dataset backend an ExpressionService reads from. The
// in-memory CSV store and the TileDB store both provide it through the
// adapters below.
type Source interface {
	Meta() expr.Meta
	Genes() []string
	Samples() []string
	Lookup(gene string) (int, bool)
	SearchGenes(prefix string, offset, limit int) ([]string, int)
	Stats(gene string) (*expr.GeneStats, error)
	Rows(genes []string) (present []string, values [][]float64, err error)
}

// memSource adapts the in-memory dataset to Source.
type memSource struct {
	*expr.Dataset
}

// NewMemSource wraps an in-memory dataset as a Source.
func NewMemSource(d *expr.Dataset) Source { return memSource{d} }

func (m memSource) Rows(genes []string) ([]string, [][]float64, error) {
	present, values := m.Dataset.Rows(genes)
	return present, values, nil
}

// storeSource adapts a TileDB-backed reader to Source, with an LRU row cache
// in front of array reads.
type storeSource struct {
	id     string
	reader *exprdb.Reader
	cache  *cache.Manager
	meta   expr.Meta
}

// NewStoreSource wraps a TileDB-backed reader as a Source. cache may be nil
// to read uncached.
func NewStoreSource(id string, r *exprdb.Reader, c *cache.Manager) Source {
	return &storeSource{
		id:     id,
		reader: r,
		cache:  c,
		meta: expr.Meta{
			ID:       id,
			Name:     r.Name(),
			Source:   r.Path(),
			NGenes:   len(r.Genes()),
			NSamples: len(r.Samples()),
		},
	}
}

func (s *storeSource) Meta() expr.Meta { return s.meta }

func (s *storeSource) Genes() []string { return s.reader.Genes() }

func (s *storeSource) Samples() []string { return s.reader.Samples() }

func (s *storeSource) Lookup(gene string) (int, bool) { return s.reader.Lookup(gene) }

func (s *storeSource) SearchGenes(prefix string, offset, limit int) ([]string, int) {
	return expr.SearchSymbols(s.reader.Genes(), prefix, offset, limit)
}

func (s *storeSource) Stats(gene string) (*expr.GeneStats, error) {
	idx, ok := s.reader.Lookup(gene)
	if !ok {
		return nil, errors.Newf("gene not found: %s", gene)
	}
	present, rows, err := s.Rows([]string{gene})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Newf("gene not found: %s", gene)
	}
	return expr.RowStats(present[0], idx, rows[0]), nil
}

// Rows resolves the requested genes to store rows in dataset order, serving
// cached rows where possible and batch-reading the rest.
func (s *storeSource) Rows(genes []string) ([]string, [][]float64, error) {
	want := make(map[int]bool, len(genes))
	for _, g := range genes {
		if idx, ok := s.reader.Lookup(g); ok {
			want[idx] = true
		}
	}

	all := s.reader.Genes()
	present := make([]string, 0, len(want))
	values := make([][]float64, 0, len(want))
	var missPos []int // positions in values still to fill
	var missRow []int // store row indices for those positions
	for idx, g := range all {
		if !want[idx] {
			continue
		}
		present = append(present, g)
		if s.cache != nil {
			if row, ok := s.cache.GetRow(cache.RowKey(s.id, g)); ok {
				cp := make([]float64, len(row))
				copy(cp, row)
				values = append(values, cp)
				continue
			}
		}
		values = append(values, nil)
		missPos = append(missPos, len(values)-1)
		missRow = append(missRow, idx)
	}

	if len(missRow) > 0 {
		read, err := s.reader.Rows(missRow)
		if err != nil {
			return nil, nil, err
		}
		for i, pos := range missPos {
			values[pos] = read[i]
			if s.cache != nil {
				cp := make([]float64, len(read[i]))
				copy(cp, read[i])
				s.cache.SetRow(cache.RowKey(s.id, present[pos]), cp)
			}
		}
	}
	return present, values, nil
}

// ExpressionServiceConfig contains expression service configuration.
type ExpressionServiceConfig struct {
	DatasetID string
	Source    Source
	Cache     *cache.Manager
	Renderer  *render.HeatmapRenderer
	Linkage   hclust.Method
}

// ExpressionService serves one dataset: gene lookups, submatrix extraction,
// clustering with a result cache in front, heatmap rendering.
type ExpressionService struct {
	datasetID string
	src       Source
	cache     *cache.Manager
	renderer  *render.HeatmapRenderer
	linkage   hclust.Method
}

// NewExpressionService creates a new expression service.
func NewExpressionService(cfg ExpressionServiceConfig) *ExpressionService {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}
	return &ExpressionService{
		datasetID: datasetID,
		src:       cfg.Source,
		cache:     cfg.Cache,
		renderer:  cfg.Renderer,
		linkage:   cfg.Linkage,
	}
}

func (s *ExpressionService) DatasetID() string { return s.datasetID }

// Meta returns the dataset metadata.
func (s *ExpressionService) Meta() expr.Meta { return s.src.Meta() }

// Samples returns the sample labels in column order.
func (s *ExpressionService) Samples() []string { return s.src.Samples() }

// Linkage returns the linkage criterion this service clusters with.
func (s *ExpressionService) Linkage() hclust.Method { return s.linkage }

// HasGene reports whether the dataset contains the gene.
func (s *ExpressionService) HasGene(gene string) bool {
	_, ok := s.src.Lookup(gene)
	return ok
}

// SearchGenes pages through gene symbols with the given prefix.
func (s *ExpressionService) SearchGenes(prefix string, offset, limit int) ([]string, int) {
	return s.src.SearchGenes(prefix, offset, limit)
}

// GeneStats returns summary statistics for one gene.
func (s *ExpressionService) GeneStats(gene string) (*expr.GeneStats, error) {
	return s.src.Stats(gene)
}

// Submatrix returns the expression matrix for the requested genes present in
// this dataset, rows in dataset order with duplicates collapsed.
func (s *ExpressionService) Submatrix(genes []string) (cluster.Matrix, error) {
	present, values, err := s.src.Rows(genes)
	if err != nil {
		return cluster.Matrix{}, errors.Wrap(err, "reading expression rows")
	}
	if len(present) == 0 {
		return cluster.Matrix{}, ErrNoGenes
	}
	return cluster.NewMatrix(present, s.src.Samples(), values)
}

// ClusterGenes runs the clustering pipeline for the requested genes, with
// the result cache in front. Degenerate subsets (one present gene, one
// sample) still produce a complete result.
func (s *ExpressionService) ClusterGenes(ctx context.Context, genes []string) (*cluster.Result, error) {
	key := cache.ResultKey(s.datasetID, s.linkage.String(), genes)
	if s.cache != nil {
		if data, ok := s.cache.GetResult(key); ok {
			var res cluster.Result
			if err := json.Unmarshal(data, &res); err == nil {
				return &res, nil
			}
			// Undecodable entry: fall through and recompute.
		}
	}

	m, err := s.Submatrix(genes)
	if err != nil {
		return nil, err
	}
	res, err := cluster.Run(ctx, m, cluster.Options{Method: s.linkage})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(res); err == nil {
			s.cache.SetResult(key, data)
		}
	}
	return res, nil
}

// HeatmapPNG renders the clustered heatmap for the requested genes, cached
// by gene set and render parameters.
func (s *ExpressionService) HeatmapPNG(ctx context.Context, genes []string, colormapName string, cellSize int) ([]byte, error) {
	if s.renderer == nil {
		return nil, errors.New("rendering not configured")
	}

	key := cache.ImageKey(s.datasetID, colormapName, cellSize, genes)
	if s.cache != nil {
		if data, ok := s.cache.GetImage(key); ok {
			return data, nil
		}
	}

	res, err := s.ClusterGenes(ctx, genes)
	if err != nil {
		return nil, err
	}
	data, err := s.renderer.Render(res, colormapName, cellSize)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetImage(key, data)
	}
	return data, nil
}
