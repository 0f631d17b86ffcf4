package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_http_requests_total",
		Help: "HTTP requests by method, route pattern and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heatmap_http_request_duration_seconds",
		Help:    "HTTP request duration by route pattern",
		Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 30},
	}, []string{"route"})

	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heatmap_cluster_jobs_submitted_total",
		Help: "Clustering jobs accepted for background execution",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heatmap_cluster_jobs_finished_total",
		Help: "Clustering jobs finished, by terminal status",
	}, []string{"status"})
)

// metricsMiddleware records a counter and duration sample per request,
// labeled by the chi route pattern rather than the raw path so that
// /d/{dataset} routes aggregate per endpoint.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
