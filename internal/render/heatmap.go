// Package render draws clustered expression heatmaps using fogleman/gg.
package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fogleman/gg"

	"github.com/gene-heatmap/server/internal/cluster"
	"github.com/gene-heatmap/server/pkg/colormap"
)

// ErrTooLarge is returned when a heatmap would exceed the configured cell
// budget.
var ErrTooLarge = errors.New("heatmap too large to render")

// zLimit caps the symmetric color range. Z-scores beyond three deviations
// saturate rather than washing out the rest of the scale.
const zLimit = 3.0

const (
	margin      = 6  // outer border, px
	dendroSize  = 80 // depth of each dendrogram panel, px
	maxCellSize = 64
)

// Config contains renderer configuration.
type Config struct {
	DefaultColormap string
	DefaultCellSize int
	MaxCells        int
}

// HeatmapRenderer renders clustering results as PNG heatmaps with
// dendrogram panels.
type HeatmapRenderer struct {
	config     Config
	bufferPool sync.Pool
	colormaps  map[string]colormap.Colormap
}

// NewHeatmapRenderer creates a new heatmap renderer.
func NewHeatmapRenderer(cfg Config) *HeatmapRenderer {
	if cfg.DefaultColormap == "" {
		cfg.DefaultColormap = "rdbu"
	}
	if cfg.DefaultCellSize <= 0 {
		cfg.DefaultCellSize = 12
	}
	if cfg.MaxCells <= 0 {
		cfg.MaxCells = 250000
	}

	r := &HeatmapRenderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
		colormaps: make(map[string]colormap.Colormap),
	}

	// Initialize colormaps
	r.colormaps["rdbu"] = colormap.RdBu
	r.colormaps["coolwarm"] = colormap.Coolwarm
	r.colormaps["viridis"] = colormap.Viridis
	r.colormaps["plasma"] = colormap.Plasma
	r.colormaps["inferno"] = colormap.Inferno
	r.colormaps["magma"] = colormap.Magma
	r.colormaps["seurat"] = colormap.Seurat

	return r
}

// Render draws a reordered clustering result as a PNG. Rows follow
// res.Genes and columns follow res.Samples, so each dendrogram leaf lines
// up with its grid row or column. An unknown colormap name falls back to
// the default, and cellSize is clamped to a drawable range.
func (r *HeatmapRenderer) Render(res *cluster.Result, colormapName string, cellSize int) ([]byte, error) {
	rows := len(res.Genes)
	cols := len(res.Samples)
	if rows == 0 || cols == 0 {
		return nil, errors.New("empty clustering result")
	}
	if cells := rows * cols; cells > r.config.MaxCells {
		return nil, errors.Wrapf(ErrTooLarge, "%d cells exceeds limit of %d", cells, r.config.MaxCells)
	}

	if cellSize <= 0 {
		cellSize = r.config.DefaultCellSize
	}
	if cellSize > maxCellSize {
		cellSize = maxCellSize
	}

	cmap, ok := r.colormaps[colormapName]
	if !ok {
		cmap = r.colormaps[r.config.DefaultColormap]
	}

	cell := float64(cellSize)
	rowDendW := 0
	if res.RowDendrogram != nil {
		rowDendW = dendroSize
	}
	colDendH := 0
	if res.ColDendrogram != nil {
		colDendH = dendroSize
	}

	width := 2*margin + rowDendW + cols*cellSize
	height := 2*margin + colDendH + rows*cellSize
	gx := float64(margin + rowDendW)
	gy := float64(margin + colDendH)

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	// Cell grid over a symmetric range centered on zero, so the neutral
	// midpoint of a diverging map means "at the gene's mean".
	limit := 0.0
	for _, row := range res.Data {
		for _, v := range row {
			if a := math.Abs(v); a > limit {
				limit = a
			}
		}
	}
	if limit > zLimit {
		limit = zLimit
	}
	if limit == 0 {
		limit = 1
	}

	for i, row := range res.Data {
		for j, v := range row {
			t := (v + limit) / (2 * limit)
			dc.SetColor(cmap.At(t))
			dc.DrawRectangle(gx+float64(j)*cell, gy+float64(i)*cell, cell, cell)
			dc.Fill()
		}
	}

	dc.SetColor(color.RGBA{64, 64, 64, 255})
	dc.SetLineWidth(1)
	if res.RowDendrogram != nil {
		r.drawRowDendrogram(dc, res.RowDendrogram, gx, gy, cell)
	}
	if res.ColDendrogram != nil {
		r.drawColDendrogram(dc, res.ColDendrogram, gx, gy, cell)
	}

	return r.encodeContext(dc)
}

// layoutDendrogram computes the axis position and merge height of every
// cluster id. Leaf ids take the center of their display slot from Order,
// and merge i creates id len(Order)+i halfway between its children.
func layoutDendrogram(d *cluster.Dendrogram, cell float64) (pos, height []float64, maxH float64) {
	n := len(d.Order)
	pos = make([]float64, n+len(d.Merges))
	height = make([]float64, n+len(d.Merges))
	for i, id := range d.Order {
		pos[id] = (float64(i) + 0.5) * cell
	}
	for i, m := range d.Merges {
		id := n + i
		pos[id] = (pos[m.Left] + pos[m.Right]) / 2
		height[id] = m.Distance
		if m.Distance > maxH {
			maxH = m.Distance
		}
	}
	return pos, height, maxH
}

// drawRowDendrogram draws the gene tree to the left of the grid, root
// outward, leaves touching the grid edge at their row centers.
func (r *HeatmapRenderer) drawRowDendrogram(dc *gg.Context, d *cluster.Dendrogram, gx, gy, cell float64) {
	pos, height, maxH := layoutDendrogram(d, cell)
	scale := 0.0
	if maxH > 0 {
		scale = (dendroSize - 2) / maxH
	}
	xAt := func(dist float64) float64 { return gx - dist*scale }

	for i, m := range d.Merges {
		id := len(d.Order) + i
		xm := xAt(height[id])
		ya := gy + pos[m.Left]
		yb := gy + pos[m.Right]
		dc.DrawLine(xAt(height[m.Left]), ya, xm, ya)
		dc.DrawLine(xm, ya, xm, yb)
		dc.DrawLine(xm, yb, xAt(height[m.Right]), yb)
	}
	dc.Stroke()
}

// drawColDendrogram draws the sample tree above the grid.
func (r *HeatmapRenderer) drawColDendrogram(dc *gg.Context, d *cluster.Dendrogram, gx, gy, cell float64) {
	pos, height, maxH := layoutDendrogram(d, cell)
	scale := 0.0
	if maxH > 0 {
		scale = (dendroSize - 2) / maxH
	}
	yAt := func(dist float64) float64 { return gy - dist*scale }

	for i, m := range d.Merges {
		id := len(d.Order) + i
		ym := yAt(height[id])
		xa := gx + pos[m.Left]
		xb := gx + pos[m.Right]
		dc.DrawLine(xa, yAt(height[m.Left]), xa, ym)
		dc.DrawLine(xa, ym, xb, ym)
		dc.DrawLine(xb, ym, xb, yAt(height[m.Right]))
	}
	dc.Stroke()
}

func (r *HeatmapRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, errors.Wrap(err, "encoding png")
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
