package api

import (
	"strings"

	"github.com/gene-heatmap/server/internal/service"
)

// DatasetInfo contains information about a dataset for the API response.
type DatasetInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	NGenes   int    `json:"n_genes"`
	NSamples int    `json:"n_samples"`
}

// DatasetRegistry holds expression services for all configured datasets.
type DatasetRegistry struct {
	services       map[string]*service.ExpressionService
	defaultDataset string
	datasetOrder   []string
	title          string
}

// NewDatasetRegistry creates a new dataset registry.
func NewDatasetRegistry(defaultDataset string, order []string, title string) *DatasetRegistry {
	return &DatasetRegistry{
		services:       make(map[string]*service.ExpressionService),
		defaultDataset: defaultDataset,
		datasetOrder:   order,
		title:          title,
	}
}

// Register adds an expression service for a dataset.
func (r *DatasetRegistry) Register(datasetID string, svc *service.ExpressionService) {
	r.services[datasetID] = svc
}

// Get returns the expression service for a dataset, or nil if not found.
func (r *DatasetRegistry) Get(datasetID string) *service.ExpressionService {
	return r.services[datasetID]
}

// DefaultDatasetID returns the default dataset ID.
func (r *DatasetRegistry) DefaultDatasetID() string {
	return r.defaultDataset
}

// DatasetIDs returns all dataset IDs in config order.
func (r *DatasetRegistry) DatasetIDs() []string {
	return r.datasetOrder
}

// Title returns the configured site title.
func (r *DatasetRegistry) Title() string {
	if r.title != "" {
		return r.title
	}
	return "Gene Expression Heatmap"
}

// Datasets returns dataset info for all registered datasets.
func (r *DatasetRegistry) Datasets() []DatasetInfo {
	infos := make([]DatasetInfo, 0, len(r.datasetOrder))
	for _, id := range r.datasetOrder {
		svc := r.services[id]
		if svc == nil {
			continue
		}
		meta := svc.Meta()
		infos = append(infos, DatasetInfo{
			ID:       id,
			Name:     meta.Name,
			NGenes:   meta.NGenes,
			NSamples: meta.NSamples,
		})
	}
	return infos
}

// DatasetsWithGene returns the ids of the datasets that contain a gene.
func (r *DatasetRegistry) DatasetsWithGene(gene string) []string {
	var ids []string
	for _, id := range r.datasetOrder {
		svc := r.services[id]
		if svc != nil && svc.HasGene(gene) {
			ids = append(ids, id)
		}
	}
	return ids
}

// ValidateGenes normalizes a requested gene list and splits it into the
// symbols found in at least one dataset and the rest. Symbols are trimmed,
// upper-cased and de-duplicated, preserving first-seen order.
func (r *DatasetRegistry) ValidateGenes(genes []string) (valid, invalid []string) {
	seen := make(map[string]bool, len(genes))
	for _, g := range genes {
		g = strings.ToUpper(strings.TrimSpace(g))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		if len(r.DatasetsWithGene(g)) > 0 {
			valid = append(valid, g)
		} else {
			invalid = append(invalid, g)
		}
	}
	return valid, invalid
}
