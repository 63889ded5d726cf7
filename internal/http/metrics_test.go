package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMetrics(t *testing.T) (*HTTPMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := &HTTPMetrics{meter: mp.Meter(httpInstrumentationName), logger: zap.NewNop()}
	m.init()
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumByRoute(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	out := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("http.route"))
		out[route.AsString()] += dp.Value
	}
	return out
}

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	m, reader := newTestMetrics(t)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/me/imports/:id/process", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"id": c.Param("id")})
	})
	e.GET("/boom", func(c echo.Context) error {
		return errors.New("store exploded")
	})

	for _, r := range []struct{ method, target string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/me/imports/6f1c/process"},
		{http.MethodPost, "/api/v1/me/imports/9a2b/process"},
		{http.MethodGet, "/boom"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.target, nil))
	}

	metrics := collect(t, reader)

	requests, ok := metrics["nomee.http.requests_total"]
	require.True(t, ok, "requests counter not found")
	byRoute := sumByRoute(t, requests)
	assert.Equal(t, int64(1), byRoute["/health"])
	assert.Equal(t, int64(2), byRoute["/api/v1/me/imports/:id/process"])
	assert.Equal(t, int64(1), byRoute["/boom"])

	failures, ok := metrics["nomee.http.server_errors_total"]
	require.True(t, ok, "server error counter not found")
	assert.Equal(t, map[string]int64{"/boom": 1}, sumByRoute(t, failures))

	latency, ok := metrics["nomee.http.request_duration_seconds"]
	require.True(t, ok, "duration histogram not found")
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)

	_, ok = metrics["nomee.http.response_size_bytes"]
	assert.True(t, ok, "response size histogram not found")
}

func TestResponseStatus(t *testing.T) {
	e := echo.New()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no error", nil, http.StatusOK},
		{"echo error", echo.NewHTTPError(http.StatusNotFound), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			if tt.err == nil {
				require.NoError(t, c.NoContent(http.StatusOK))
			}
			assert.Equal(t, tt.want, responseStatus(c, tt.err))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/me/imports/:id", "/api/v1/me/imports/:id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input), tt.input)
	}
}
