package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzChecksTotal    *prometheus.CounterVec
	AuthzAllowedIDCount *prometheus.HistogramVec

	// Policy service metrics
	PolicyFetchesTotal     *prometheus.CounterVec
	PolicyFetchDuration    prometheus.Histogram
	PolicyCacheHitsTotal   *prometheus.CounterVec
	PolicyCacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scmguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scmguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scmguard_authz_checks_total",
				Help: "Authorization checks by action, resource, and outcome",
			},
			[]string{"action", "resource", "outcome"},
		),
		AuthzAllowedIDCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scmguard_authz_allowed_ids",
				Help:    "Size of resolved entity allow-lists",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"resource"},
		),
		PolicyFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scmguard_policy_fetches_total",
				Help: "Remote policy service fetches by result",
			},
			[]string{"result"},
		),
		PolicyFetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scmguard_policy_fetch_duration_seconds",
				Help:    "Remote policy fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		PolicyCacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scmguard_policy_cache_hits_total",
				Help: "Policy row cache hits by layer",
			},
			[]string{"layer"},
		),
		PolicyCacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scmguard_policy_cache_misses_total",
				Help: "Policy row cache misses by layer",
			},
			[]string{"layer"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scmguard_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scmguard_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzChecksTotal,
		m.AuthzAllowedIDCount,
		m.PolicyFetchesTotal,
		m.PolicyFetchDuration,
		m.PolicyCacheHitsTotal,
		m.PolicyCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAuthzCheck records the outcome of one authorization check
func (m *Metrics) RecordAuthzCheck(action, resource string, allowed bool) {
	outcome := "forbidden"
	if allowed {
		outcome = "allowed"
	}
	m.AuthzChecksTotal.WithLabelValues(action, resource, outcome).Inc()
}

// RecordAllowedIDs tracks the size of a resolved entity allow-list
func (m *Metrics) RecordAllowedIDs(resource string, count int) {
	m.AuthzAllowedIDCount.WithLabelValues(resource).Observe(float64(count))
}

// RecordDBStats samples the connection pool gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The path label uses the mux route template, not the raw URL, to bound
// label cardinality.
func HTTPMetricsMiddleware(metrics *Metrics, routePath func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			path := r.URL.Path
			if routePath != nil {
				if p := routePath(r); p != "" {
					path = p
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.statusCode = status
	r.ResponseWriter.WriteHeader(status)
}
