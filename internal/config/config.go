// Package config handles configuration loading for the heatmap server.
package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Cluster ClusterConfig `yaml:"cluster"`
	Cache   CacheConfig   `yaml:"cache"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// DataConfig holds the datasets to serve, keyed by dataset id. YAML order
// is preserved; the first dataset is the default unless an explicit
// "default" key selects another.
type DataConfig struct {
	DefaultDataset string
	Datasets       map[string]DatasetConfig

	order []string
}

// DatasetConfig describes one expression dataset.
type DatasetConfig struct {
	Name string `yaml:"name"`
	// Path points at the expression file. CSVPath is an accepted alias kept
	// for configs written against the original data preparation scripts.
	Path    string `yaml:"path"`
	CSVPath string `yaml:"csv_path"`
	// Format is "csv" or "gct"; inferred from the file name when empty.
	Format string `yaml:"format"`
	// TileDBPath selects the dense-array backend instead of an in-memory
	// load. Requires a build with TileDB support.
	TileDBPath string `yaml:"tiledb_path"`
}

// FilePath returns the configured expression file path.
func (d DatasetConfig) FilePath() string {
	if d.Path != "" {
		return d.Path
	}
	return d.CSVPath
}

// ResolvedFormat returns the dataset file format, inferring it from the
// file name when not set explicitly.
func (d DatasetConfig) ResolvedFormat() string {
	if d.Format != "" {
		return d.Format
	}
	if strings.Contains(d.FilePath(), ".gct") {
		return "gct"
	}
	return "csv"
}

// ClusterConfig bounds and tunes the clustering endpoints.
type ClusterConfig struct {
	Linkage         string `yaml:"linkage"`
	MaxGenesSync    int    `yaml:"max_genes_sync"`
	MaxGenesJob     int    `yaml:"max_genes_job"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ResultSizeMB     int `yaml:"result_size_mb"`
	ResultTTLMinutes int `yaml:"result_ttl_minutes"`
	RowCacheSize     int `yaml:"row_cache_size"`
}

// JobsConfig controls the async clustering job manager.
type JobsConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent"`
	SQLitePath    string `yaml:"sqlite_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// RenderConfig contains heatmap rendering settings.
type RenderConfig struct {
	CellSize        int    `yaml:"cell_size"`
	DefaultColormap string `yaml:"default_colormap"`
	MaxCells        int    `yaml:"max_cells"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DatasetIDs returns the dataset ids in configured order.
func (d *DataConfig) DatasetIDs() []string {
	ids := make([]string, len(d.order))
	copy(ids, d.order)
	return ids
}

// reservedDataKeys are data-section keys that do not name a dataset.
var reservedDataKeys = map[string]bool{
	"default":     true,
	"name":        true,
	"path":        true,
	"csv_path":    true,
	"format":      true,
	"tiledb_path": true,
}

// UnmarshalYAML decodes the data section. Two layouts are accepted: a map
// of dataset ids to dataset blocks, and the legacy flat layout where the
// dataset fields sit directly under "data" and describe a single dataset
// named "default".
func (d *DataConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return errors.New("config: data section must be a mapping")
	}

	d.Datasets = make(map[string]DatasetConfig)
	d.order = nil

	var legacy DatasetConfig
	hasLegacy := false
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		val := value.Content[i+1]

		if !reservedDataKeys[key] {
			var ds DatasetConfig
			if err := val.Decode(&ds); err != nil {
				return errors.Wrapf(err, "config: dataset %q", key)
			}
			d.Datasets[key] = ds
			d.order = append(d.order, key)
			continue
		}

		switch key {
		case "default":
			d.DefaultDataset = val.Value
		case "name":
			legacy.Name = val.Value
			hasLegacy = true
		case "path":
			legacy.Path = val.Value
			hasLegacy = true
		case "csv_path":
			legacy.CSVPath = val.Value
			hasLegacy = true
		case "format":
			legacy.Format = val.Value
			hasLegacy = true
		case "tiledb_path":
			legacy.TileDBPath = val.Value
			hasLegacy = true
		}
	}

	if hasLegacy && len(d.order) == 0 {
		d.Datasets["default"] = legacy
		d.order = []string{"default"}
	}
	if d.DefaultDataset == "" && len(d.order) > 0 {
		d.DefaultDataset = d.order[0]
	}
	if d.DefaultDataset != "" {
		if _, ok := d.Datasets[d.DefaultDataset]; !ok {
			return errors.Newf("config: default dataset %q is not configured", d.DefaultDataset)
		}
	}
	return nil
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parsing YAML")
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration: the two reference
// datasets produced by the dataprep tool, served from ./data.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "Gene Expression Heatmap",
		},
		Data: DataConfig{
			DefaultDataset: "brainspan",
			Datasets: map[string]DatasetConfig{
				"brainspan": {
					Name: "BrainSpan Developmental Transcriptome",
					Path: "./data/brainspan_gene_expression.csv",
				},
				"gtex": {
					Name: "GTEx Median Tissue Expression",
					Path: "./data/gtex_gene_expression.csv",
				},
			},
			order: []string{"brainspan", "gtex"},
		},
		Cluster: ClusterConfig{
			Linkage:         "average",
			MaxGenesSync:    200,
			MaxGenesJob:     2000,
			RateLimitPerMin: 60,
		},
		Cache: CacheConfig{
			ResultSizeMB:     256,
			ResultTTLMinutes: 15,
			RowCacheSize:     4096,
		},
		Jobs: JobsConfig{
			MaxConcurrent: 2,
			SQLitePath:    "./data/cluster_jobs.db",
			RetentionDays: 7,
		},
		Render: RenderConfig{
			CellSize:        12,
			DefaultColormap: "rdbu",
			MaxCells:        2000000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Data.Datasets) == 0 {
		cfg.Data = defaults.Data
	}
	if cfg.Cluster.Linkage == "" {
		cfg.Cluster.Linkage = defaults.Cluster.Linkage
	}
	if cfg.Cluster.MaxGenesSync == 0 {
		cfg.Cluster.MaxGenesSync = defaults.Cluster.MaxGenesSync
	}
	if cfg.Cluster.MaxGenesJob == 0 {
		cfg.Cluster.MaxGenesJob = defaults.Cluster.MaxGenesJob
	}
	if cfg.Cluster.RateLimitPerMin == 0 {
		cfg.Cluster.RateLimitPerMin = defaults.Cluster.RateLimitPerMin
	}
	if cfg.Cache.ResultSizeMB == 0 {
		cfg.Cache.ResultSizeMB = defaults.Cache.ResultSizeMB
	}
	if cfg.Cache.ResultTTLMinutes == 0 {
		cfg.Cache.ResultTTLMinutes = defaults.Cache.ResultTTLMinutes
	}
	if cfg.Cache.RowCacheSize == 0 {
		cfg.Cache.RowCacheSize = defaults.Cache.RowCacheSize
	}
	if cfg.Jobs.MaxConcurrent == 0 {
		cfg.Jobs.MaxConcurrent = defaults.Jobs.MaxConcurrent
	}
	if cfg.Jobs.SQLitePath == "" {
		cfg.Jobs.SQLitePath = defaults.Jobs.SQLitePath
	}
	if cfg.Jobs.RetentionDays == 0 {
		cfg.Jobs.RetentionDays = defaults.Jobs.RetentionDays
	}
	if cfg.Render.CellSize == 0 {
		cfg.Render.CellSize = defaults.Render.CellSize
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.MaxCells == 0 {
		cfg.Render.MaxCells = defaults.Render.MaxCells
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
}
