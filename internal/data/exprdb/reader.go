// Package exprdb reads expression matrices stored as dense TileDB arrays.
//
// A dataset directory holds two entries:
//
//	labels.json   {"name": ..., "genes": [...], "samples": [...]}
//	expr/         2-D dense TileDB array, dim "gene" = row, dim "sample" =
//	              column, attribute "expr" (float32)
//
// Matrix reads need a TileDB build (go build -tags tiledb). Without the tag
// the reader still resolves paths and serves labels, so configuration
// problems surface at startup, but Rows returns ErrUnsupported.
package exprdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnsupported indicates this binary was built without TileDB support.
var ErrUnsupported = errors.New("tiledb support is not enabled in this build (build server with: go build -tags tiledb)")

// Labels is the sidecar metadata written next to the expression array.
type Labels struct {
	Name    string   `json:"name"`
	Genes   []string `json:"genes"`
	Samples []string `json:"samples"`
}

// ResolveDatasetPath cleans and expands a dataset directory path.
func ResolveDatasetPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", errors.New("empty tiledb_path")
	}
	p = os.ExpandEnv(p)
	return filepath.Clean(p), nil
}

// dataset carries the label-derived state shared by both builds.
type dataset struct {
	path   string
	labels Labels
	index  map[string]int
}

func openDataset(path string) (*dataset, error) {
	p, err := ResolveDatasetPath(path)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(p); statErr != nil {
		return nil, errors.Wrapf(statErr, "tiledb dataset not found at %s", p)
	}

	raw, err := os.ReadFile(filepath.Join(p, "labels.json"))
	if err != nil {
		return nil, errors.Wrap(err, "reading labels.json")
	}
	var labels Labels
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, errors.Wrap(err, "parsing labels.json")
	}
	if len(labels.Genes) == 0 || len(labels.Samples) == 0 {
		return nil, errors.Newf("labels.json at %s has no genes or no samples", p)
	}

	index := make(map[string]int, len(labels.Genes))
	for i, g := range labels.Genes {
		index[strings.ToUpper(strings.TrimSpace(g))] = i
	}
	return &dataset{path: p, labels: labels, index: index}, nil
}

func (d *dataset) Path() string { return d.path }

func (d *dataset) Name() string { return d.labels.Name }

// Genes returns all gene symbols in row order. The caller must not modify
// the returned slice.
func (d *dataset) Genes() []string { return d.labels.Genes }

// Samples returns all sample labels in column order. The caller must not
// modify the returned slice.
func (d *dataset) Samples() []string { return d.labels.Samples }

// Lookup returns the row index of a gene symbol, matched case-insensitively.
func (d *dataset) Lookup(gene string) (int, bool) {
	idx, ok := d.index[strings.ToUpper(strings.TrimSpace(gene))]
	return idx, ok
}

func (d *dataset) arrayURI() string { return filepath.Join(d.path, "expr") }
