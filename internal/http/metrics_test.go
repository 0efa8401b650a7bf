package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	m := newHTTPMetrics(metric.NewMeterProvider(metric.WithReader(reader)), nil)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/api/v1/sessions/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	})

	for _, target := range []string{"/health", "/api/v1/sessions/a", "/api/v1/sessions/b"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	requests := map[attribute.Distinct]int64{}
	var sessionsNotFound int64
	foundDuration := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "opsagent.http.requests_total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				for _, dp := range sum.DataPoints {
					requests[dp.Attributes.Equivalent()] += dp.Value
					endpoint, _ := dp.Attributes.Value("endpoint")
					status, _ := dp.Attributes.Value("status")
					if endpoint.AsString() == "/api/v1/sessions/:id" && status.AsInt64() == http.StatusNotFound {
						sessionsNotFound += dp.Value
					}
				}
			case "opsagent.http.request_duration_seconds":
				foundDuration = true
				hist, ok := m.Data.(metricdata.Histogram[float64])
				require.True(t, ok)
				var count uint64
				for _, dp := range hist.DataPoints {
					count += dp.Count
				}
				assert.Equal(t, uint64(3), count)
			}
		}
	}

	assert.Len(t, requests, 2, "session IDs share one route label")
	assert.Equal(t, int64(2), sessionsNotFound)
	assert.True(t, foundDuration, "duration histogram not found")
}

func TestNewHTTPMetrics(t *testing.T) {
	m := NewHTTPMetrics(logging.NewNop())
	assert.NotNil(t, m.requestsTotal)
	assert.NotNil(t, m.requestDur)
	assert.NotNil(t, m.activeRequests)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/health", "/health"},
		{"/api/v1/sessions/:id", "/api/v1/sessions/:id"},
		{"/api/v1/sessions/:id/process", "/api/v1/sessions/:id/process"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizePath(tt.input))
		})
	}
}
