package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gene-heatmap/server/internal/cache"
	"github.com/gene-heatmap/server/internal/data/expr"
	"github.com/gene-heatmap/server/internal/render"
	"github.com/gene-heatmap/server/internal/service"
)

// testServer holds the test server and its dependencies
type testServer struct {
	server     *httptest.Server
	registry   *DatasetRegistry
	cache      *cache.Manager
	jobManager *JobManager
}

// setupTestServer builds a server over two small in-memory datasets.
// "brainspan" and "gtex" share GFAP; OLIG2 and SOX2 are brainspan-only and
// TP53 is gtex-only, so union validation has something to distinguish.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	brainspan, err := expr.New("brainspan", "BrainSpan Test", "",
		[]string{"GFAP", "OLIG2", "SOX2"},
		[]string{"s1", "s2", "s3", "s4"},
		[][]float64{
			{1, 2, 3, 4},
			{4, 3, 2, 1},
			{1, 2, 3, 4},
		})
	if err != nil {
		t.Fatalf("building brainspan dataset: %v", err)
	}
	gtex, err := expr.New("gtex", "GTEx Test", "",
		[]string{"GFAP", "TP53"},
		[]string{"t1", "t2"},
		[][]float64{
			{2, 4},
			{1, 0},
		})
	if err != nil {
		t.Fatalf("building gtex dataset: %v", err)
	}

	cacheManager, err := cache.NewManager(cache.Config{
		ResultCacheSizeMB: 8,
		ResultTTL:         time.Minute,
		RowCacheSize:      64,
	})
	if err != nil {
		t.Fatalf("initializing cache: %v", err)
	}

	renderer := render.NewHeatmapRenderer(render.Config{})

	registry := NewDatasetRegistry("brainspan", []string{"brainspan", "gtex"}, "Test Atlas")
	registry.Register("brainspan", service.NewExpressionService(service.ExpressionServiceConfig{
		DatasetID: "brainspan",
		Source:    service.NewMemSource(brainspan),
		Cache:     cacheManager,
		Renderer:  renderer,
	}))
	registry.Register("gtex", service.NewExpressionService(service.ExpressionServiceConfig{
		DatasetID: "gtex",
		Source:    service.NewMemSource(gtex),
		Cache:     cacheManager,
		Renderer:  renderer,
	}))

	jm, err := NewJobManager(JobManagerConfig{
		MaxConcurrent: 1,
		SQLitePath:    filepath.Join(t.TempDir(), "jobs.db"),
		RetentionDays: 1,
		CleanupPeriod: time.Hour,
	})
	if err != nil {
		t.Fatalf("initializing job manager: %v", err)
	}
	jm.Executor = service.NewClusterJobRunner(registry).Run
	jm.Start()

	router := NewRouter(RouterConfig{
		Registry:        registry,
		CORSOrigins:     []string{"http://localhost:3000"},
		JobManager:      jm,
		MaxGenesSync:    4,
		MaxGenesJob:     10,
		RateLimitPerMin: 100000,
	})

	return &testServer{
		server:     httptest.NewServer(router),
		registry:   registry,
		cache:      cacheManager,
		jobManager: jm,
	}
}

// close cleans up test server resources
func (ts *testServer) close() {
	ts.server.Close()
	ts.jobManager.Stop()
	ts.cache.Close()
}

// --- Helper Functions ---

// assertStatusCode verifies the HTTP status code
func assertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// assertPNG verifies the response body is a valid PNG image
func assertPNG(t *testing.T, body []byte) {
	t.Helper()
	pngMagic := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	if len(body) < 8 {
		t.Errorf("Response too short to be a valid PNG (got %d bytes)", len(body))
		return
	}
	if !bytes.Equal(body[:8], pngMagic) {
		t.Errorf("Invalid PNG magic bytes: % X", body[:8])
	}
}

// getJSON performs a GET and decodes the JSON response
func getJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, wantStatus)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("Failed to parse JSON response: %v (body %q)", err, body)
	}
	return payload
}

// postJSON performs a POST with a JSON body and decodes the JSON response
func postJSON(t *testing.T, url, body string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, wantStatus)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("Failed to parse JSON response: %v (body %q)", err, raw)
	}
	return payload
}

// --- Test Cases ---

// TestHealthEndpoint tests the health check endpoint
func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, err := http.Get(ts.server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	assertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %q", string(body))
	}
}

// TestAPIHealthEndpoint tests the JSON health endpoint
func TestAPIHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/api/health", http.StatusOK)
	if payload["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", payload["status"])
	}
	datasets, ok := payload["datasets"].(map[string]interface{})
	if !ok || len(datasets) != 2 {
		t.Errorf("Expected 2 dataset entries, got %v", payload["datasets"])
	}
}

// TestDatasetsEndpoint tests the dataset listing endpoint
func TestDatasetsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/api/datasets", http.StatusOK)
	if payload["default"] != "brainspan" {
		t.Errorf("Expected default brainspan, got %v", payload["default"])
	}
	if payload["title"] != "Test Atlas" {
		t.Errorf("Expected title 'Test Atlas', got %v", payload["title"])
	}
	datasets, ok := payload["datasets"].([]interface{})
	if !ok || len(datasets) != 2 {
		t.Fatalf("Expected 2 datasets, got %v", payload["datasets"])
	}
	first, _ := datasets[0].(map[string]interface{})
	if first["id"] != "brainspan" || first["n_genes"] != float64(3) {
		t.Errorf("Unexpected first dataset info: %v", first)
	}
}

// TestGeneLookupEndpoint tests the global symbol lookup
func TestGeneLookupEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/api/gene-lookup?gene=tp53", http.StatusOK)
	if payload["gene"] != "TP53" {
		t.Errorf("Expected gene TP53, got %v", payload["gene"])
	}
	datasets, _ := payload["datasets"].([]interface{})
	if len(datasets) != 1 || datasets[0] != "gtex" {
		t.Errorf("Expected datasets [gtex], got %v", payload["datasets"])
	}

	// Unknown symbols produce an empty list, not an error.
	payload = getJSON(t, ts.server.URL+"/api/gene-lookup?gene=NOPE", http.StatusOK)
	if datasets, _ := payload["datasets"].([]interface{}); len(datasets) != 0 {
		t.Errorf("Expected empty datasets, got %v", payload["datasets"])
	}

	resp, err := http.Get(ts.server.URL + "/api/gene-lookup")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, http.StatusBadRequest)
}

// TestGenesEndpoint tests gene listing with prefix search
func TestGenesEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/d/brainspan/api/genes?q=so", http.StatusOK)
	genes, _ := payload["genes"].([]interface{})
	if len(genes) != 1 || genes[0] != "SOX2" {
		t.Errorf("Expected genes [SOX2], got %v", payload["genes"])
	}
	if payload["total"] != float64(1) {
		t.Errorf("Expected total 1, got %v", payload["total"])
	}

	payload = getJSON(t, ts.server.URL+"/d/brainspan/api/genes", http.StatusOK)
	if payload["total"] != float64(3) {
		t.Errorf("Expected total 3, got %v", payload["total"])
	}
}

// TestGeneInfoEndpoint tests per-gene statistics
func TestGeneInfoEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/d/brainspan/api/genes/gfap", http.StatusOK)
	if payload["gene"] != "GFAP" {
		t.Errorf("Expected gene GFAP, got %v", payload["gene"])
	}
	if payload["n_samples"] != float64(4) {
		t.Errorf("Expected n_samples 4, got %v", payload["n_samples"])
	}

	resp, err := http.Get(ts.server.URL + "/d/brainspan/api/genes/NOPE")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, http.StatusNotFound)
}

// TestSamplesEndpoint tests the sample listing
func TestSamplesEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/d/brainspan/api/samples", http.StatusOK)
	samples, _ := payload["samples"].([]interface{})
	if len(samples) != 4 || samples[0] != "s1" {
		t.Errorf("Unexpected samples: %v", payload["samples"])
	}
	if payload["total"] != float64(4) {
		t.Errorf("Expected total 4, got %v", payload["total"])
	}
}

// TestStatsEndpoint tests the dataset stats summary
func TestStatsEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := getJSON(t, ts.server.URL+"/d/gtex/api/stats", http.StatusOK)
	if payload["dataset_name"] != "GTEx Test" {
		t.Errorf("Expected dataset_name 'GTEx Test', got %v", payload["dataset_name"])
	}
	if payload["n_genes"] != float64(2) || payload["n_samples"] != float64(2) {
		t.Errorf("Unexpected counts: %v", payload)
	}
	if payload["linkage"] != "average" {
		t.Errorf("Expected linkage average, got %v", payload["linkage"])
	}
}

// TestUnknownDataset tests that unknown dataset ids 404 via middleware
func TestUnknownDataset(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, err := http.Get(ts.server.URL + "/d/nope/api/metadata")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, http.StatusNotFound)
}

// TestClusterEndpoint tests synchronous clustering
func TestClusterEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := postJSON(t, ts.server.URL+"/d/brainspan/api/cluster",
		`{"genes":["GFAP","OLIG2","SOX2"]}`, http.StatusOK)

	genes, _ := payload["genes"].([]interface{})
	if len(genes) != 3 {
		t.Fatalf("Expected 3 genes in result, got %v", payload["genes"])
	}
	// GFAP and SOX2 share a profile and end up adjacent.
	if genes[0] != "OLIG2" {
		t.Errorf("Expected OLIG2 first in leaf order, got %v", genes)
	}
	rowDend, _ := payload["row_dendrogram"].(map[string]interface{})
	if rowDend == nil {
		t.Fatal("Expected row_dendrogram in result")
	}
	merges, _ := rowDend["merges"].([]interface{})
	if len(merges) != 2 {
		t.Errorf("Expected 2 row merges, got %v", rowDend["merges"])
	}
}

// TestClusterEndpointErrors tests the error statuses of the sync endpoint
func TestClusterEndpointErrors(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"invalidBody", `not json`, http.StatusBadRequest},
		{"missingGenes", `{}`, http.StatusBadRequest},
		{"emptyGenes", `{"genes":[]}`, http.StatusBadRequest},
		{"unknownGenes", `{"genes":["NOPE","ALSO_NOPE"]}`, http.StatusNotFound},
		{"tooManyGenes", `{"genes":["A","B","C","D","E"]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.server.URL+"/d/brainspan/api/cluster",
				"application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("Failed to make request: %v", err)
			}
			defer resp.Body.Close()
			assertStatusCode(t, resp, tt.expectedStatus)
		})
	}
}

// TestProcessGenesEndpoint tests clustering a list against every dataset
func TestProcessGenesEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	payload := postJSON(t, ts.server.URL+"/api/process-genes",
		`{"genes":["gfap","tp53","NOPE"]}`, http.StatusOK)

	if payload["success"] != true {
		t.Errorf("Expected success true, got %v", payload["success"])
	}
	valid, _ := payload["valid_genes"].([]interface{})
	if len(valid) != 2 || valid[0] != "GFAP" || valid[1] != "TP53" {
		t.Errorf("Unexpected valid_genes: %v", payload["valid_genes"])
	}
	invalid, _ := payload["invalid_genes"].([]interface{})
	if len(invalid) != 1 || invalid[0] != "NOPE" {
		t.Errorf("Unexpected invalid_genes: %v", payload["invalid_genes"])
	}

	// Both datasets contain at least one valid gene, so both report results.
	results, _ := payload["results"].(map[string]interface{})
	if len(results) != 2 {
		t.Fatalf("Expected results for 2 datasets, got %v", payload["results"])
	}
	gtexRes, _ := results["gtex"].(map[string]interface{})
	genes, _ := gtexRes["genes"].([]interface{})
	if len(genes) != 2 {
		t.Errorf("Expected 2 genes in gtex result, got %v", gtexRes["genes"])
	}
}

// TestProcessGenesEndpointErrors tests validation failures
func TestProcessGenesEndpointErrors(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedError  string
	}{
		{"noBody", ``, http.StatusBadRequest, "No genes provided"},
		{"missingKey", `{}`, http.StatusBadRequest, "No genes provided"},
		{"genesNotList", `{"genes":"GFAP"}`, http.StatusBadRequest, "No genes provided"},
		{"emptyList", `{"genes":[]}`, http.StatusBadRequest, "No genes provided"},
		{"allInvalid", `{"genes":["NOPE"]}`, http.StatusBadRequest, "No valid genes found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := postJSON(t, ts.server.URL+"/api/process-genes", tt.body, tt.expectedStatus)
			if payload["error"] != tt.expectedError {
				t.Errorf("Expected error %q, got %v", tt.expectedError, payload["error"])
			}
		})
	}
}

// TestHeatmapEndpoint tests PNG rendering via GET and POST
func TestHeatmapEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, err := http.Get(ts.server.URL + "/d/brainspan/api/heatmap.png?genes=GFAP,OLIG2,SOX2&cell_size=8")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected Content-Type image/png, got %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	assertPNG(t, body)

	// POST with the genes in the body renders the same way.
	resp2, err := http.Post(ts.server.URL+"/d/brainspan/api/heatmap.png?cell_size=8",
		"application/json", strings.NewReader(`{"genes":["GFAP","OLIG2"]}`))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp2.Body.Close()
	assertStatusCode(t, resp2, http.StatusOK)
	body2, err := io.ReadAll(resp2.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	assertPNG(t, body2)

	// Missing genes parameter is a client error.
	resp3, err := http.Get(ts.server.URL + "/d/brainspan/api/heatmap.png")
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp3.Body.Close()
	assertStatusCode(t, resp3, http.StatusBadRequest)
}

// TestClusterJobLifecycle tests submit, poll, result and list
func TestClusterJobLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	submitted := postJSON(t, ts.server.URL+"/d/brainspan/api/cluster/jobs",
		`{"genes":["GFAP","OLIG2","SOX2"]}`, http.StatusAccepted)
	jobID, _ := submitted["job_id"].(string)
	if jobID == "" {
		t.Fatalf("Expected a job_id, got %v", submitted)
	}
	if submitted["status"] != "queued" {
		t.Errorf("Expected status queued, got %v", submitted["status"])
	}

	status := waitForJobStatus(t, ts, "brainspan", jobID, "completed")
	if status["n_genes"] != float64(3) || status["n_samples"] != float64(4) {
		t.Errorf("Unexpected job counts: %v", status)
	}

	result := getJSON(t, ts.server.URL+"/d/brainspan/api/cluster/jobs/"+jobID+"/result", http.StatusOK)
	genes, _ := result["genes"].([]interface{})
	if len(genes) != 3 {
		t.Errorf("Expected 3 genes in job result, got %v", result["genes"])
	}

	list := getJSON(t, ts.server.URL+"/d/brainspan/api/cluster/jobs", http.StatusOK)
	if list["total"] != float64(1) {
		t.Errorf("Expected 1 job for dataset, got %v", list["total"])
	}

	// The job belongs to brainspan, so other dataset scopes cannot see it.
	resp, err := http.Get(ts.server.URL + "/d/gtex/api/cluster/jobs/" + jobID)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, http.StatusNotFound)
}

// TestClusterJobValidation tests submit-side validation
func TestClusterJobValidation(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.close()

	resp, err := http.Post(ts.server.URL+"/d/brainspan/api/cluster/jobs",
		"application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	assertStatusCode(t, resp, http.StatusBadRequest)

	// Eleven distinct names exceed the configured job cap of ten.
	names := make([]string, 11)
	for i := range names {
		names[i] = fmt.Sprintf("\"G%d\"", i)
	}
	body := `{"genes":[` + strings.Join(names, ",") + `]}`
	resp2, err := http.Post(ts.server.URL+"/d/brainspan/api/cluster/jobs",
		"application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp2.Body.Close()
	assertStatusCode(t, resp2, http.StatusRequestEntityTooLarge)
}

// waitForJobStatus polls the job status endpoint until the wanted status or
// a timeout.
func waitForJobStatus(t *testing.T, ts *testServer, datasetID, jobID, want string) map[string]interface{} {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		payload := getJSON(t, ts.server.URL+"/d/"+datasetID+"/api/cluster/jobs/"+jobID, http.StatusOK)
		status, _ := payload["status"].(string)
		if status == want {
			return payload
		}
		if status == "failed" || status == "cancelled" {
			t.Fatalf("Job reached terminal status %q (error: %v) while waiting for %q", status, payload["error"], want)
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for job %s to reach %q", jobID, want)
	return nil
}
