package observability

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cvtailor/internal/ai"
	"cvtailor/internal/config"
	"cvtailor/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestManager(t *testing.T) (*Manager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := NewManager(context.Background(), config.ObservabilityConfig{
		Enabled:        true,
		TraceExporter:  "none",
		MetricExporter: "none",
		SampleRate:     1,
	}, "test", nil, WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

// sumWhere adds the counter points whose attributes include every key=value in want.
func sumWhere(t *testing.T, data metricdata.Aggregation, want map[string]string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected an int64 sum, got %T", data)

	var total int64
	for _, dp := range sum.DataPoints {
		matched := true
		for k, v := range want {
			got, ok := dp.Attributes.Value(attribute.Key(k))
			if !ok || got.AsString() != v {
				matched = false
				break
			}
		}
		if matched {
			total += dp.Value
		}
	}
	return total
}

func TestObserveAIOperation(t *testing.T) {
	m, reader := newTestManager(t)
	ctx := context.Background()

	usage := &ai.TokenUsage{InputTokens: 120, OutputTokens: 30, TotalTokens: 150}
	m.ObserveAIOperation(ctx, "tailor", 2*time.Second, usage, nil)
	m.ObserveAIOperation(ctx, "tailor", time.Second, nil, fmt.Errorf("boom"))
	m.ObserveAIOperation(ctx, "refine", time.Second, &ai.TokenUsage{InputTokens: 10}, nil)

	data := collect(t, reader)

	ops := data["cvtailor_ai_operations_total"]
	assert.Equal(t, int64(1), sumWhere(t, ops, map[string]string{"operation": "tailor", "status": "success"}))
	assert.Equal(t, int64(1), sumWhere(t, ops, map[string]string{"operation": "tailor", "status": "error"}))
	assert.Equal(t, int64(1), sumWhere(t, ops, map[string]string{"operation": "refine"}))

	tokens := data["cvtailor_ai_tokens_total"]
	assert.Equal(t, int64(120), sumWhere(t, tokens, map[string]string{"operation": "tailor", "kind": "input"}))
	assert.Equal(t, int64(150), sumWhere(t, tokens, map[string]string{"operation": "tailor", "kind": "total"}))
	assert.Equal(t, int64(0), sumWhere(t, tokens, map[string]string{"operation": "refine", "kind": "output"}))

	hist, ok := data["cvtailor_ai_operation_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

func TestObserveTransitionAndExports(t *testing.T) {
	m, reader := newTestManager(t)
	ctx := context.Background()

	m.ObserveTransition(types.StateIdle, types.StateLoading)
	m.ObserveTransition(types.StateLoading, types.StateSuccess)
	m.ObserveTransition(types.StateIdle, types.StateLoading)
	m.RecordExport(ctx, "resume", nil)
	m.RecordExport(ctx, "cover_letter", fmt.Errorf("disk full"))
	m.RecordRateLimitHit(ctx, "ip")
	m.RecordCertReload(ctx, nil)

	data := collect(t, reader)

	transitions := data["cvtailor_session_transitions_total"]
	assert.Equal(t, int64(2), sumWhere(t, transitions, map[string]string{"from": "idle", "to": "loading"}))
	assert.Equal(t, int64(1), sumWhere(t, transitions, map[string]string{"from": "loading", "to": "success"}))

	exports := data["cvtailor_exports_total"]
	assert.Equal(t, int64(1), sumWhere(t, exports, map[string]string{"kind": "resume", "status": "success"}))
	assert.Equal(t, int64(1), sumWhere(t, exports, map[string]string{"kind": "cover_letter", "status": "error"}))

	assert.Equal(t, int64(1), sumWhere(t, data["cvtailor_rate_limit_hits_total"], map[string]string{"by": "ip"}))
	assert.Equal(t, int64(1), sumWhere(t, data["cvtailor_cert_reloads_total"], map[string]string{"status": "success"}))
}

func TestHTTPMiddlewareCountsRequests(t *testing.T) {
	m, reader := newTestManager(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := m.HTTPMiddleware(mux)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	requests := collect(t, reader)["cvtailor_http_requests_total"]
	assert.Equal(t, int64(2), sumWhere(t, requests, map[string]string{"route": "GET /ping", "status": "418"}))
	assert.Equal(t, int64(1), sumWhere(t, requests, map[string]string{"status": "404"}))
}

func TestPrometheusHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewManager(context.Background(), config.ObservabilityConfig{
		Enabled:        true,
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRate:     1,
	}, "test", nil, WithRegistry(reg))
	require.NoError(t, err)
	defer func() { _ = m.Shutdown(context.Background()) }()

	m.ObserveAIOperation(context.Background(), "coverLetter", time.Second, nil, nil)

	handler := m.MetricsHandler()
	require.NotNil(t, handler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "cvtailor_ai_operations")
	assert.Contains(t, body, `operation="coverLetter"`)
}

func TestDisabledManagerIsNoop(t *testing.T) {
	m, err := NewManager(context.Background(), config.ObservabilityConfig{Enabled: false}, "test", nil)
	require.NoError(t, err)
	assert.False(t, m.Enabled())
	assert.Nil(t, m.MetricsHandler())

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	wrapped := m.HTTPMiddleware(next)
	assert.Equal(t, fmt.Sprintf("%p", next), fmt.Sprintf("%p", wrapped))

	m.ObserveAIOperation(context.Background(), "tailor", time.Second, nil, nil)
	m.ObserveTransition(types.StateIdle, types.StateLoading)
	assert.NoError(t, m.Shutdown(context.Background()))

	var nilManager *Manager
	assert.NotPanics(t, func() {
		nilManager.ObserveAIOperation(context.Background(), "tailor", time.Second, nil, nil)
		nilManager.ObserveTransition(types.StateIdle, types.StateLoading)
		nilManager.RecordExport(context.Background(), "resume", nil)
		_ = nilManager.Tracer("x")
		_ = nilManager.Shutdown(context.Background())
	})
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewManager(context.Background(), config.ObservabilityConfig{
		Enabled:       true,
		TraceExporter: "zipkin",
	}, "test", nil)
	assert.Error(t, err)
}
