package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gene-heatmap/server/internal/cache"
	"github.com/gene-heatmap/server/internal/data/expr"
	"github.com/gene-heatmap/server/internal/service"
)

// newNoListenRouter builds a router over one tiny dataset for tests that
// drive it through httptest recorders instead of a listening server.
func newNoListenRouter(t *testing.T, rateLimitPerMin int) http.Handler {
	t.Helper()

	d, err := expr.New("mini", "Mini", "",
		[]string{"GFAP", "OLIG2"},
		[]string{"s1", "s2", "s3"},
		[][]float64{
			{1, 2, 3},
			{3, 2, 1},
		})
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}

	cacheManager, err := cache.NewManager(cache.Config{
		ResultCacheSizeMB: 8,
		ResultTTL:         time.Minute,
		RowCacheSize:      16,
	})
	if err != nil {
		t.Fatalf("initializing cache: %v", err)
	}
	t.Cleanup(func() { cacheManager.Close() })

	registry := NewDatasetRegistry("mini", []string{"mini"}, "")
	registry.Register("mini", service.NewExpressionService(service.ExpressionServiceConfig{
		DatasetID: "mini",
		Source:    service.NewMemSource(d),
		Cache:     cacheManager,
	}))

	return NewRouter(RouterConfig{
		Registry:        registry,
		CORSOrigins:     []string{"http://localhost:3000"},
		RateLimitPerMin: rateLimitPerMin,
	})
}

func TestRateLimit_NoListen(t *testing.T) {
	// A one-per-minute budget: the first request spends the full burst and
	// the second is rejected.
	router := newNoListenRouter(t, 1)

	body := `{"genes":["GFAP","OLIG2"]}`
	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/d/mini/api/cluster", strings.NewReader(body)))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d: %s", first.Code, first.Body.String())
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/d/mini/api/cluster", strings.NewReader(body)))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be limited, got %d", second.Code)
	}
}

func TestCORSPreflight_NoListen(t *testing.T) {
	router := newNoListenRouter(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/d/mini/api/cluster", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected Access-Control-Allow-Origin: got %q", got)
	}
}

func TestMetricsEndpoint_NoListen(t *testing.T) {
	router := newNoListenRouter(t, 0)

	// One real request so the counters have something to report.
	warm := httptest.NewRecorder()
	router.ServeHTTP(warm, httptest.NewRequest(http.MethodGet, "/health", nil))
	if warm.Code != http.StatusOK {
		t.Fatalf("health request failed: %d", warm.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "heatmap_http_requests_total") {
		t.Fatal("expected request counter in metrics exposition")
	}
}
