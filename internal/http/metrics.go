package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/http"

// HTTPMetrics records per-route request metrics through the global meter.
type HTTPMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requests metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	bodySize metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTPMetrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

// init creates the instruments. An instrument that fails to register stays
// nil and is skipped when recording.
func (m *HTTPMetrics) init() {
	var err error
	warn := func(name string) {
		if err != nil {
			m.logger.Warn("failed to create http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m.requests, err = m.meter.Int64Counter("nomee.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status code"),
		metric.WithUnit("{request}"))
	warn("requests_total")

	m.failures, err = m.meter.Int64Counter("nomee.http.server_errors_total",
		metric.WithDescription("HTTP requests answered with a 5xx status"),
		metric.WithUnit("{request}"))
	warn("server_errors_total")

	m.latency, err = m.meter.Float64Histogram("nomee.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		// Import processing waits on two model calls, so the tail reaches a minute.
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60))
	warn("request_duration_seconds")

	m.bodySize, err = m.meter.Int64Histogram("nomee.http.response_size_bytes",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(64, 256, 1024, 4096, 16384, 65536))
	warn("response_size_bytes")

	m.inFlight, err = m.meter.Int64UpDownCounter("nomee.http.active_requests",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"))
	warn("active_requests")
}

// MetricsMiddleware records one observation per request, labelled by the
// matched route template rather than the raw path.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			status := responseStatus(c, err)
			attrs := metric.WithAttributes(
				attribute.String("http.request.method", c.Request().Method),
				attribute.String("http.route", normalizePath(c.Path())),
				attribute.Int("http.response.status_code", status),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.failures != nil && status >= http.StatusInternalServerError {
				m.failures.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.bodySize != nil {
				m.bodySize.Record(ctx, c.Response().Size, attrs)
			}
			return err
		}
	}
}

// responseStatus is the status the client will see. Errors returned from the
// chain are rendered by the error handler after this middleware runs.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return statusFor(err)
}

// normalizePath returns the matched route template, so /api/v1/me/imports/:id
// is one series regardless of the id. Unmatched requests share one label.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
