// Package api provides HTTP handlers for the gene expression heatmap server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gene-heatmap/server/internal/data/exprdb"
	"github.com/gene-heatmap/server/internal/logging"
	"github.com/gene-heatmap/server/internal/render"
	"github.com/gene-heatmap/server/internal/service"

	"github.com/gene-heatmap/server/internal/jobstore"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry        *DatasetRegistry
	CORSOrigins     []string
	JobManager      *JobManager
	MaxGenesSync    int
	MaxGenesJob     int
	RateLimitPerMin int
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.MaxGenesSync <= 0 {
		cfg.MaxGenesSync = 200
	}
	if cfg.MaxGenesJob <= 0 {
		cfg.MaxGenesJob = 2000
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 60
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Synchronous clustering endpoints share one limiter; the burst equals a
	// full minute's budget so short spikes pass.
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RateLimitPerMin)), cfg.RateLimitPerMin)

	// Health checks
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/api/health", apiHealthHandler(cfg.Registry))

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Global gene lookup (resolves a symbol -> matching datasets)
	r.Get("/api/gene-lookup", geneLookupHandler(cfg.Registry))

	// Cluster a gene list against every dataset at once
	r.With(rateLimit(limiter)).Post("/api/process-genes", processGenesHandler(cfg.Registry, cfg.MaxGenesSync))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", datasetMetadataHandler)
			r.Get("/genes", datasetGenesHandler)
			r.Get("/genes/{gene}", datasetGeneInfoHandler)
			r.Get("/samples", datasetSamplesHandler)
			r.Get("/stats", datasetStatsHandler)

			r.With(rateLimit(limiter)).Post("/cluster", datasetClusterHandler(cfg.MaxGenesSync))
			r.With(rateLimit(limiter)).Get("/heatmap.png", datasetHeatmapHandler(cfg.MaxGenesSync))
			r.With(rateLimit(limiter)).Post("/heatmap.png", datasetHeatmapHandler(cfg.MaxGenesSync))

			// Async clustering job endpoints
			r.Route("/cluster/jobs", func(r chi.Router) {
				r.Post("/", jobSubmitHandler(cfg.JobManager, cfg.MaxGenesJob))
				r.Get("/", jobListHandler(cfg.JobManager))
				r.Get("/{job_id}", jobStatusHandler(cfg.JobManager))
				r.Get("/{job_id}/result", jobResultHandler(cfg.JobManager))
				r.Delete("/{job_id}", jobCancelHandler(cfg.JobManager))
			})
		})
	})

	return r
}

// Context key for dataset service
type ctxKey string

const datasetServiceKey ctxKey = "datasetService"

// datasetMiddleware resolves the dataset from URL and injects the expression
// service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.ExpressionService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.ExpressionService); ok {
		return svc
	}
	return nil
}

// rateLimit rejects requests over the shared budget with 429. Applied to the
// endpoints that can trigger a synchronous clustering run.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded; retry shortly or use the jobs API", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func apiHealthHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loaded := make(map[string]bool)
		for _, id := range registry.DatasetIDs() {
			loaded[id] = registry.Get(id) != nil
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "ok",
			"datasets": loaded,
		})
	}
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}

// geneLookupHandler resolves a gene symbol to the list of datasets
// containing it.
func geneLookupHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gene := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("gene")))
		if gene == "" {
			http.Error(w, "missing required query param: gene", http.StatusBadRequest)
			return
		}

		matching := registry.DatasetsWithGene(gene)
		if matching == nil {
			matching = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"gene":     gene,
			"datasets": matching,
		})
	}
}

// processGenesHandler validates a gene list against every dataset and
// returns one clustering result per dataset that contains any of the genes.
func processGenesHandler(registry *DatasetRegistry, maxGenes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Genes []string `json:"genes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Genes == nil {
			writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{"error": "No genes provided"})
			return
		}

		valid, invalid := registry.ValidateGenes(req.Genes)
		if len(valid)+len(invalid) == 0 {
			writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{"error": "No genes provided"})
			return
		}
		if invalid == nil {
			invalid = []string{}
		}
		if len(valid) == 0 {
			writeJSONStatus(w, http.StatusBadRequest, map[string]interface{}{
				"error":         "No valid genes found",
				"invalid_genes": invalid,
			})
			return
		}
		if len(valid) > maxGenes {
			writeJSONStatus(w, http.StatusRequestEntityTooLarge, map[string]interface{}{
				"error": fmt.Sprintf("too many genes for synchronous clustering (%d > %d); use the per-dataset jobs API", len(valid), maxGenes),
			})
			return
		}

		results := make(map[string]interface{})
		for _, id := range registry.DatasetIDs() {
			svc := registry.Get(id)
			if svc == nil {
				continue
			}
			res, err := svc.ClusterGenes(r.Context(), valid)
			if errors.Is(err, service.ErrNoGenes) {
				// None of the genes are in this dataset; skip it.
				continue
			}
			if err != nil {
				logging.Errorf("process-genes: dataset %s: %v", id, err)
				writeJSONStatus(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal server error"})
				return
			}
			results[id] = res
		}

		writeJSONStatus(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"valid_genes":   valid,
			"invalid_genes": invalid,
			"results":       results,
		})
	}
}

// Dataset-scoped handlers (get service from context)

func datasetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(svc.Meta())
}

func datasetGenesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query().Get("q")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	genes, total := svc.SearchGenes(q, offset, limit)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"genes":  genes,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func datasetGeneInfoHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	gene := chi.URLParam(r, "gene")
	stats, err := svc.GeneStats(gene)
	if err != nil {
		http.Error(w, "gene not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func datasetSamplesHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	samples := svc.Samples()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"samples": samples,
		"total":   len(samples),
	})
}

func datasetStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	meta := svc.Meta()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"dataset_name": meta.Name,
		"n_genes":      meta.NGenes,
		"n_samples":    meta.NSamples,
		"source":       meta.Source,
		"linkage":      svc.Linkage().String(),
	})
}

// datasetClusterHandler runs clustering synchronously for a small gene list.
func datasetClusterHandler(maxGenes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		var req struct {
			Genes []string `json:"genes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Genes == nil {
			http.Error(w, "invalid request body: a genes list is required", http.StatusBadRequest)
			return
		}

		genes := normalizeGenes(req.Genes)
		if len(genes) == 0 {
			http.Error(w, "no genes provided", http.StatusBadRequest)
			return
		}
		if len(genes) > maxGenes {
			http.Error(w, fmt.Sprintf("too many genes for synchronous clustering (%d > %d); use the jobs API", len(genes), maxGenes), http.StatusRequestEntityTooLarge)
			return
		}

		res, err := svc.ClusterGenes(r.Context(), genes)
		if err != nil {
			writeClusterError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}
}

// datasetHeatmapHandler renders the clustered heatmap as a PNG. Genes come
// from the query string on GET and from the body on POST.
func datasetHeatmapHandler(maxGenes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		var (
			genes []string
			ok    bool
		)
		if r.Method == http.MethodPost {
			var err error
			genes, ok, err = parseGeneListBody(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		} else {
			genes, ok = parseGeneList(r.URL.Query())
		}
		if !ok {
			http.Error(w, "missing required parameter: genes", http.StatusBadRequest)
			return
		}

		genes = normalizeGenes(genes)
		if len(genes) == 0 {
			http.Error(w, "no genes provided", http.StatusBadRequest)
			return
		}
		if len(genes) > maxGenes {
			http.Error(w, fmt.Sprintf("too many genes for synchronous rendering (%d > %d)", len(genes), maxGenes), http.StatusRequestEntityTooLarge)
			return
		}

		colormapName := strings.TrimSpace(r.URL.Query().Get("colormap"))
		cellSize := parseCellSize(r.URL.Query())

		data, err := svc.HeatmapPNG(r.Context(), genes, colormapName, cellSize)
		if err != nil {
			writeClusterError(w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Write(data)
	}
}

// Clustering job handlers

func jobSubmitHandler(jm *JobManager, maxGenes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		var req struct {
			Genes []string `json:"genes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Genes == nil {
			http.Error(w, "invalid request body: a genes list is required", http.StatusBadRequest)
			return
		}

		genes := normalizeGenes(req.Genes)
		if len(genes) == 0 {
			http.Error(w, "no genes provided", http.StatusBadRequest)
			return
		}
		if len(genes) > maxGenes {
			http.Error(w, fmt.Sprintf("too many genes (%d > %d)", len(genes), maxGenes), http.StatusRequestEntityTooLarge)
			return
		}

		params := jobstore.ClusterJobParams{
			DatasetID: chi.URLParam(r, "dataset"),
			Genes:     genes,
			Linkage:   svc.Linkage().String(),
		}

		job, err := jm.Submit(params)
		if err != nil {
			http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func jobListHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		datasetID := chi.URLParam(r, "dataset")
		jobs, err := jm.Store().ListJobsByDataset(datasetID)
		if err != nil {
			http.Error(w, "failed to list jobs: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jobs":  jobs,
			"total": len(jobs),
		})
	}
}

func jobStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		// Check dataset matches
		datasetID := chi.URLParam(r, "dataset")
		if job.Params.DatasetID != datasetID {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":      job.ID,
			"status":      job.Status,
			"created_at":  job.CreatedAt,
			"started_at":  job.StartedAt,
			"finished_at": job.FinishedAt,
			"progress":    job.Progress,
			"n_genes":     job.NGenes,
			"n_samples":   job.NSamples,
			"error":       job.Error,
		})
	}
}

func jobResultHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		datasetID := chi.URLParam(r, "dataset")
		if job.Params.DatasetID != datasetID {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		if job.Status != jobstore.JobStatusCompleted {
			http.Error(w, "job not completed (status: "+string(job.Status)+")", http.StatusBadRequest)
			return
		}

		payload, err := jm.Store().GetResult(jobID)
		if err != nil {
			http.Error(w, "failed to load result: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if payload == nil {
			http.Error(w, "job result no longer available", http.StatusNotFound)
			return
		}

		// The stored payload is the ClusterResult JSON; stream it as-is.
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}

func jobCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		datasetID := chi.URLParam(r, "dataset")
		if job.Params.DatasetID != datasetID {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		cancelled := jm.Cancel(jobID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id":    jobID,
			"cancelled": cancelled,
		})
	}
}

// Helpers

// writeClusterError maps clustering and rendering failures onto HTTP
// statuses: absent genes 404, oversized renders 400, a backend built
// without TileDB 501, anything else 500.
func writeClusterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoGenes):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, render.ErrTooLarge):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, exprdb.ErrUnsupported):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSONStatus(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// normalizeGenes trims, upper-cases and de-duplicates a gene list, dropping
// empties and preserving first-seen order.
func normalizeGenes(genes []string) []string {
	seen := make(map[string]bool, len(genes))
	out := make([]string, 0, len(genes))
	for _, g := range genes {
		g = strings.ToUpper(strings.TrimSpace(g))
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

func parseCellSize(query url.Values) int {
	raw := strings.TrimSpace(query.Get("cell_size"))
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		// The renderer substitutes its configured default.
		return 0
	}
	return v
}

func parseGeneList(query url.Values) ([]string, bool) {
	rawValues, present := query["genes"]
	if !present {
		return nil, false
	}

	// Support repeated query parameters:
	//   ?genes=GFAP&genes=OLIG2
	if len(rawValues) > 1 {
		out := make([]string, 0, len(rawValues))
		for _, v := range rawValues {
			v = strings.TrimSpace(v)
			if v != "" {
				out = append(out, v)
			}
		}
		return out, true
	}

	raw := strings.TrimSpace(rawValues[0])
	if raw == "" {
		return nil, false
	}

	// Preferred format (frontend): JSON array, e.g. ["GFAP","OLIG2"].
	if strings.HasPrefix(raw, "[") {
		var genes []string
		if err := json.Unmarshal([]byte(raw), &genes); err == nil {
			return genes, true
		}
		// Fall through to comma-separated parsing for tolerance.
	}

	// Legacy format: comma-separated list, e.g. GFAP,OLIG2
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

const maxGeneListBodyBytes = 1 << 20 // 1 MiB

func parseGeneListBody(r *http.Request) ([]string, bool, error) {
	if r.Body == nil {
		return nil, false, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxGeneListBodyBytes+1))
	if err != nil {
		return nil, false, err
	}
	if len(body) > maxGeneListBodyBytes {
		return nil, false, errors.New("gene list body too large")
	}

	raw := bytes.TrimSpace(body)
	if len(raw) == 0 {
		return nil, false, nil
	}

	// Preferred POST payload: an object, e.g. {"genes":["GFAP","OLIG2"]}.
	// A bare JSON array is also accepted.
	if raw[0] == '{' {
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(raw, &payload); err == nil {
			rawGenes, ok := payload["genes"]
			if !ok {
				return nil, false, nil
			}

			rawGenes = bytes.TrimSpace(rawGenes)
			if len(rawGenes) == 0 || bytes.Equal(rawGenes, []byte("null")) {
				return nil, false, nil
			}

			var genes []string
			if err := json.Unmarshal(rawGenes, &genes); err == nil {
				return genes, true, nil
			}

			var genesString string
			if err := json.Unmarshal(rawGenes, &genesString); err == nil {
				list, ok := parseGeneList(url.Values{"genes": {genesString}})
				return list, ok, nil
			}
		}
		// Fall through to tolerant parsing of the raw body.
	}

	// Support form-encoded bodies:
	//   genes=GFAP&genes=OLIG2
	//   genes=["GFAP","OLIG2"]
	if bytes.Contains(raw, []byte("=")) && raw[0] != '[' {
		if q, err := url.ParseQuery(string(raw)); err == nil {
			list, ok := parseGeneList(q)
			return list, ok, nil
		}
	}

	list, ok := parseGeneList(url.Values{"genes": {string(raw)}})
	return list, ok, nil
}
