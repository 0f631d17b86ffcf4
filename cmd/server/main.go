// Package main is the entry point for the gene expression heatmap server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gene-heatmap/server/internal/api"
	"github.com/gene-heatmap/server/internal/cache"
	"github.com/gene-heatmap/server/internal/config"
	"github.com/gene-heatmap/server/internal/data/expr"
	"github.com/gene-heatmap/server/internal/data/exprdb"
	"github.com/gene-heatmap/server/internal/logging"
	"github.com/gene-heatmap/server/internal/render"
	"github.com/gene-heatmap/server/internal/service"
	"github.com/gene-heatmap/server/pkg/hclust"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Logging.Level, cfg.Logging.JSON); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	logging.Infof("Starting heatmap server on port %d", cfg.Server.Port)

	linkage, err := hclust.ParseMethod(cfg.Cluster.Linkage)
	if err != nil {
		logging.Fatalf("Invalid linkage method: %v", err)
	}

	// Initialize components
	ctx := context.Background()

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		ResultCacheSizeMB: cfg.Cache.ResultSizeMB,
		ResultTTL:         time.Duration(cfg.Cache.ResultTTLMinutes) * time.Minute,
		RowCacheSize:      cfg.Cache.RowCacheSize,
	})
	if err != nil {
		logging.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize heatmap renderer (shared across all datasets)
	renderer := render.NewHeatmapRenderer(render.Config{
		DefaultColormap: cfg.Render.DefaultColormap,
		DefaultCellSize: cfg.Render.CellSize,
		MaxCells:        cfg.Render.MaxCells,
	})

	// Initialize dataset registry
	datasetIDs := cfg.Data.DatasetIDs()
	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, datasetIDs, cfg.Server.Title)

	logging.Infof("Initializing %d dataset(s), default: %s", len(datasetIDs), cfg.Data.DefaultDataset)

	// Initialize each dataset
	for _, datasetID := range datasetIDs {
		ds := cfg.Data.Datasets[datasetID]

		var source service.Source
		switch {
		case ds.TileDBPath != "":
			reader, err := exprdb.NewReader(ds.TileDBPath)
			if err != nil {
				logging.Fatalf("Failed to open store for dataset %q: %v", datasetID, err)
			}
			source = service.NewStoreSource(datasetID, reader, cacheManager)
			logging.Infof("  [%s] Store: %s (supported=%v)", datasetID, ds.TileDBPath, reader.Supported())

		case ds.FilePath() != "":
			var d *expr.Dataset
			var err error
			if ds.ResolvedFormat() == "gct" {
				d, err = expr.LoadGCT(datasetID, ds.Name, ds.FilePath())
			} else {
				d, err = expr.LoadCSV(datasetID, ds.Name, ds.FilePath())
			}
			if err != nil {
				logging.Fatalf("Failed to load dataset %q: %v", datasetID, err)
			}
			source = service.NewMemSource(d)
			logging.Infof("  [%s] Loaded from: %s", datasetID, ds.FilePath())

		default:
			logging.Fatalf("Dataset %q has neither a file path nor a store path", datasetID)
		}

		meta := source.Meta()
		logging.Infof("    Genes: %d, Samples: %d", meta.NGenes, meta.NSamples)

		registry.Register(datasetID, service.NewExpressionService(service.ExpressionServiceConfig{
			DatasetID: datasetID,
			Source:    source,
			Cache:     cacheManager,
			Renderer:  renderer,
			Linkage:   linkage,
		}))
	}

	// Initialize job manager for clustering jobs (SQLite persistence)
	jobManager, err := api.NewJobManager(api.JobManagerConfig{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		SQLitePath:    cfg.Jobs.SQLitePath,
		RetentionDays: cfg.Jobs.RetentionDays,
		CleanupPeriod: 1 * time.Hour,
	})
	if err != nil {
		logging.Fatalf("Failed to initialize job manager: %v", err)
	}
	logging.Infof("Cluster job manager: max_concurrent=%d, retention_days=%d, sqlite=%s",
		cfg.Jobs.MaxConcurrent, cfg.Jobs.RetentionDays, cfg.Jobs.SQLitePath)

	// Wire up the dispatcher as job executor
	jobManager.Executor = service.NewClusterJobRunner(registry).Run

	jobManager.Start()
	defer jobManager.Stop()

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:        registry,
		CORSOrigins:     cfg.Server.CORSOrigins,
		JobManager:      jobManager,
		MaxGenesSync:    cfg.Cluster.MaxGenesSync,
		MaxGenesJob:     cfg.Cluster.MaxGenesJob,
		RateLimitPerMin: cfg.Cluster.RateLimitPerMin,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logging.Infof("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Infof("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Errorf("Server forced to shutdown: %v", err)
	}

	logging.Infof("Server stopped")
}
