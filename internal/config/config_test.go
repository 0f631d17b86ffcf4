package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_LegacyFormat(t *testing.T) {
	content := `
server:
  port: 9000
data:
  csv_path: "/data/legacy/expression.csv"
cache:
  result_size_mb: 128
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Data.DefaultDataset != "default" {
		t.Errorf("expected default dataset 'default', got %q", cfg.Data.DefaultDataset)
	}
	ds, ok := cfg.Data.Datasets["default"]
	if !ok {
		t.Fatal("expected 'default' dataset")
	}
	if ds.FilePath() != "/data/legacy/expression.csv" {
		t.Errorf("unexpected path: %s", ds.FilePath())
	}
	if cfg.Cache.ResultSizeMB != 128 {
		t.Errorf("unexpected result_size_mb: %d", cfg.Cache.ResultSizeMB)
	}
}

func TestLoad_MultiDatasetFormat(t *testing.T) {
	content := `
server:
  port: 8080
data:
  brainspan:
    name: "BrainSpan"
    path: "/data/brainspan.csv"
  gtex:
    name: "GTEx"
    path: "/data/gtex.gct.gz"
    tiledb_path: "/data/gtex.tiledb"
`
	cfg := loadFromString(t, content)

	if len(cfg.Data.Datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(cfg.Data.Datasets))
	}

	// First dataset in YAML order should be default
	if cfg.Data.DefaultDataset != "brainspan" {
		t.Errorf("expected default dataset 'brainspan', got %q", cfg.Data.DefaultDataset)
	}

	gtex, ok := cfg.Data.Datasets["gtex"]
	if !ok {
		t.Fatal("expected 'gtex' dataset")
	}
	if gtex.ResolvedFormat() != "gct" {
		t.Errorf("expected gct format inferred from extension, got %q", gtex.ResolvedFormat())
	}
	if gtex.TileDBPath != "/data/gtex.tiledb" {
		t.Errorf("unexpected tiledb_path: %s", gtex.TileDBPath)
	}

	brainspan, ok := cfg.Data.Datasets["brainspan"]
	if !ok {
		t.Fatal("expected 'brainspan' dataset")
	}
	if brainspan.ResolvedFormat() != "csv" {
		t.Errorf("expected csv format, got %q", brainspan.ResolvedFormat())
	}

	// Check order preserved
	ids := cfg.Data.DatasetIDs()
	if len(ids) != 2 || ids[0] != "brainspan" || ids[1] != "gtex" {
		t.Errorf("unexpected dataset order: %v", ids)
	}
}

func TestLoad_ExplicitDefault(t *testing.T) {
	content := `
data:
  default: gtex
  brainspan:
    path: "/data/brainspan.csv"
  gtex:
    path: "/data/gtex.csv"
`
	cfg := loadFromString(t, content)

	if cfg.Data.DefaultDataset != "gtex" {
		t.Errorf("expected default dataset 'gtex', got %q", cfg.Data.DefaultDataset)
	}
}

func TestLoad_UnknownDefaultRejected(t *testing.T) {
	content := `
data:
  default: missing
  brainspan:
    path: "/data/brainspan.csv"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown default dataset")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
data:
  test:
    path: "/test/expression.csv"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.ResultSizeMB != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.Cache.ResultSizeMB)
	}
	if cfg.Cluster.Linkage != "average" {
		t.Errorf("expected default linkage 'average', got %q", cfg.Cluster.Linkage)
	}
	if cfg.Cluster.MaxGenesSync != 200 {
		t.Errorf("expected default sync cap 200, got %d", cfg.Cluster.MaxGenesSync)
	}
	if cfg.Render.CellSize != 12 {
		t.Errorf("expected default cell size 12, got %d", cfg.Render.CellSize)
	}
	if cfg.Jobs.MaxConcurrent != 2 {
		t.Errorf("expected default job concurrency 2, got %d", cfg.Jobs.MaxConcurrent)
	}
}

func TestLoad_NoDataSection(t *testing.T) {
	content := `
server:
  port: 8080
`
	cfg := loadFromString(t, content)

	if cfg.Data.DefaultDataset != "brainspan" {
		t.Errorf("expected built-in default dataset, got %q", cfg.Data.DefaultDataset)
	}
	if len(cfg.Data.Datasets) != 2 {
		t.Errorf("expected 2 built-in datasets, got %d", len(cfg.Data.Datasets))
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
