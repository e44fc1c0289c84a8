package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by status code",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight",
		Help: "In-flight HTTP requests",
	})
	RequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Total errors by type",
		}, []string{"type"},
	)

	CompareResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compare_results_total",
		Help:    "Matching cards per comparison",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
	})
	CatalogCampaigns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_campaigns",
		Help: "Active campaigns in the in-memory catalog",
	})
	CatalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_refresh_total",
			Help: "Catalog refreshes by result",
		}, []string{"result"},
	)
	ResultCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_total",
			Help: "Comparison result cache lookups by outcome",
		}, []string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal, Latency, InFlight, RequestErrors,
		CompareResults, CatalogCampaigns, CatalogRefreshes, ResultCache,
	)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
		if rr.code >= 500 {
			RequestErrors.WithLabelValues("server").Inc()
		} else if rr.code >= 400 {
			RequestErrors.WithLabelValues("client").Inc()
		}
	})
}
