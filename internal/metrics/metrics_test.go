package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/sentinel/pkg/models"
)

func TestObserveLookup(t *testing.T) {
	m := NewMetrics()

	m.ObserveLookup(SourceOSV, true, 10*time.Millisecond)
	m.ObserveLookup(SourceOSV, false, time.Second)
	m.ObserveLookup(SourcePyPI, false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(SourceOSV, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(SourceOSV, "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues(SourcePyPI, "failed")))
}

func TestObserveScan(t *testing.T) {
	m := NewMetrics()

	m.ObserveScan([]models.RiskRecord{
		{Band: models.BandSafe},
		{Band: models.BandSafe},
		{Band: models.BandDangerous},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("safe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("dangerous")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveLookup(SourceOSV, true, time.Second)
		m.ObserveScan([]models.RiskRecord{{Band: models.BandSafe}})
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(h))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveLookup(SourcePyPI, true, time.Millisecond)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := httptest.NewServer(m.Middleware(mux))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sentinel_lookups_total{outcome="ok",source="pypi"} 1`)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/metrics", "OK")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	m := NewMetrics()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /pkg/{name}", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(m.Middleware(mux))
	defer srv.Close()

	for _, path := range []string{"/pkg/a", "/pkg/b", "/random-1", "/random-2", "/random-3"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET /pkg/{name}", "OK")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(OtherRoute, "Not Found")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequests))
}
