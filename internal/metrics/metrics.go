package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acheong08/sentinel/pkg/models"
)

// Lookup sources
const (
	SourceOSV  = "osv"
	SourcePyPI = "pypi"
)

// Metrics holds the Prometheus collectors for scans and external lookups.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	LookupsTotal   *prometheus.CounterVec
	LookupDuration *prometheus.HistogramVec
	ScansTotal     prometheus.Counter
	RecordsTotal   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_lookups_total",
			Help: "External lookups by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	m.LookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_lookup_duration_seconds",
			Help:    "Duration of external lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	m.ScansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_scans_total",
			Help: "Completed manifest scans",
		},
	)

	m.RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_records_total",
			Help: "Risk records produced, by band",
		},
		[]string{"band"},
	)

	m.HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "status"},
	)

	m.registry.MustRegister(
		m.LookupsTotal,
		m.LookupDuration,
		m.ScansTotal,
		m.RecordsTotal,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveLookup records one external lookup
func (m *Metrics) ObserveLookup(source string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.LookupsTotal.WithLabelValues(source, outcome).Inc()
	m.LookupDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveScan records a finished scan and the band of each record
func (m *Metrics) ObserveScan(records []models.RiskRecord) {
	if m == nil {
		return
	}
	m.ScansTotal.Inc()
	for _, r := range records {
		m.RecordsTotal.WithLabelValues(string(r.Band)).Inc()
	}
}

// OtherRoute labels requests that matched no registered pattern
const OtherRoute = "other"

// Middleware counts requests per route pattern and status. It must wrap the
// ServeMux so the matched pattern is set on the request once next returns.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = OtherRoute
		}
		m.HTTPRequests.WithLabelValues(route, http.StatusText(rw.statusCode)).Inc()
	})
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Handler returns the Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
