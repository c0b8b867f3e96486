package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type options struct {
	readers  []sdkmetric.Reader
	registry *prometheus.Registry
}

// Option customizes NewManager
type Option func(*options)

// WithMetricReader adds a reader next to the configured exporter. Tests use a ManualReader.
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(o *options) {
		o.readers = append(o.readers, reader)
	}
}

// WithRegistry makes the Prometheus exporter register into reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// HTTPMiddleware wraps next with otelhttp tracing and the request counter.
// Disabled managers return next unchanged.
func (m *Manager) HTTPMiddleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}

	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.metrics.HTTPRequests.Add(r.Context(), 1, metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("status", strconv.Itoa(rec.status)),
		))
	})

	return otelhttp.NewHandler(counted, m.config.ServiceName,
		otelhttp.WithTracerProvider(m.tracerProvider),
		otelhttp.WithMeterProvider(m.meterProvider),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
