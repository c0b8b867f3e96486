package observability

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cvtailor/internal/ai"
	"cvtailor/internal/config"
	"cvtailor/internal/errors"
	"cvtailor/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Metrics holds the cvtailor instruments
type Metrics struct {
	AIOperations metric.Int64Counter
	AIDuration   metric.Float64Histogram
	AITokens     metric.Int64Counter

	Exports     metric.Int64Counter
	Transitions metric.Int64Counter

	HTTPRequests  metric.Int64Counter
	RateLimitHits metric.Int64Counter
	CertReloads   metric.Int64Counter
}

// Manager owns the tracer and meter providers. A nil or disabled Manager records nothing.
type Manager struct {
	config         config.ObservabilityConfig
	logger         *errors.Logger
	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics
	metricsHandler http.Handler
	promServer     *http.Server
	shutdownFuncs  []func(context.Context) error
}

// NewManager sets up tracing and metrics from cfg. The global OTel providers are replaced only when enabled.
func NewManager(ctx context.Context, cfg config.ObservabilityConfig, version string, logger *errors.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = errors.NewNopLogger()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "cvtailor"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version
	}

	m := &Manager{config: cfg, logger: logger}
	if !cfg.Enabled {
		m.tracerProvider = tracenoop.NewTracerProvider()
		m.meterProvider = metricnoop.NewMeterProvider()
		if err := m.initInstruments(); err != nil {
			return nil, err
		}
		return m, nil
	}

	res := m.newResource()
	if err := m.initTracing(ctx, res); err != nil {
		_ = m.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := m.initMetrics(ctx, res, o); err != nil {
		_ = m.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := m.initInstruments(); err != nil {
		_ = m.Shutdown(ctx)
		return nil, err
	}
	if err := m.startPrometheusServer(); err != nil {
		_ = m.Shutdown(ctx)
		return nil, err
	}

	logger.Info("Observability initialized",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"trace_exporter", cfg.TraceExporter,
		"metric_exporter", cfg.MetricExporter)
	return m, nil
}

func (m *Manager) newResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(m.config.ServiceName),
		semconv.ServiceVersion(m.config.ServiceVersion),
	)
}

func (m *Manager) initTracing(ctx context.Context, res *resource.Resource) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch m.config.TraceExporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracehttp.New(ctx, m.otlpTraceOptions()...)
	case "", "none":
		m.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	default:
		return fmt.Errorf("unsupported trace exporter: %s", m.config.TraceExporter)
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.config.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	m.tracerProvider = tp
	m.shutdownFuncs = append(m.shutdownFuncs, tp.Shutdown)
	return nil
}

func (m *Manager) initMetrics(ctx context.Context, res *resource.Resource, o *options) error {
	readers := append([]sdkmetric.Reader(nil), o.readers...)

	switch m.config.MetricExporter {
	case "stdout":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(m.collectionInterval())))
	case "otlp":
		exporter, err := otlpmetrichttp.New(ctx, m.otlpMetricOptions()...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(m.collectionInterval())))
	case "prometheus":
		reader, handler, err := newPrometheusReader(o.registry)
		if err != nil {
			return err
		}
		readers = append(readers, reader)
		m.metricsHandler = handler
	case "", "none":
	default:
		return fmt.Errorf("unsupported metric exporter: %s", m.config.MetricExporter)
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(mp)

	m.meterProvider = mp
	m.shutdownFuncs = append(m.shutdownFuncs, mp.Shutdown)
	return nil
}

func (m *Manager) initInstruments() error {
	meter := m.meterProvider.Meter(m.config.ServiceName)
	metrics := &Metrics{}
	var err error

	if metrics.AIOperations, err = meter.Int64Counter(
		"cvtailor_ai_operations_total",
		metric.WithDescription("Total number of AI operations by outcome"),
	); err != nil {
		return fmt.Errorf("failed to create AI operations metric: %w", err)
	}
	if metrics.AIDuration, err = meter.Float64Histogram(
		"cvtailor_ai_operation_duration_seconds",
		metric.WithDescription("Duration of AI operations"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create AI duration metric: %w", err)
	}
	if metrics.AITokens, err = meter.Int64Counter(
		"cvtailor_ai_tokens_total",
		metric.WithDescription("Tokens consumed by AI operations"),
	); err != nil {
		return fmt.Errorf("failed to create AI token metric: %w", err)
	}
	if metrics.Exports, err = meter.Int64Counter(
		"cvtailor_exports_total",
		metric.WithDescription("Total number of exported documents"),
	); err != nil {
		return fmt.Errorf("failed to create exports metric: %w", err)
	}
	if metrics.Transitions, err = meter.Int64Counter(
		"cvtailor_session_transitions_total",
		metric.WithDescription("Session lifecycle transitions"),
	); err != nil {
		return fmt.Errorf("failed to create transitions metric: %w", err)
	}
	if metrics.HTTPRequests, err = meter.Int64Counter(
		"cvtailor_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return fmt.Errorf("failed to create HTTP requests metric: %w", err)
	}
	if metrics.RateLimitHits, err = meter.Int64Counter(
		"cvtailor_rate_limit_hits_total",
		metric.WithDescription("Requests rejected by the rate limiter"),
	); err != nil {
		return fmt.Errorf("failed to create rate limit metric: %w", err)
	}
	if metrics.CertReloads, err = meter.Int64Counter(
		"cvtailor_cert_reloads_total",
		metric.WithDescription("TLS certificate reload attempts"),
	); err != nil {
		return fmt.Errorf("failed to create certificate reload metric: %w", err)
	}

	m.metrics = metrics
	return nil
}

func (m *Manager) otlpTraceOptions() []otlptracehttp.Option {
	otlp := m.config.OTLP
	var opts []otlptracehttp.Option
	if strings.Contains(otlp.Endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(otlp.Endpoint))
	} else if otlp.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(otlp.Endpoint))
	}
	if otlp.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlp.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlp.Headers))
	}
	return opts
}

func (m *Manager) otlpMetricOptions() []otlpmetrichttp.Option {
	otlp := m.config.OTLP
	var opts []otlpmetrichttp.Option
	if strings.Contains(otlp.Endpoint, "://") {
		opts = append(opts, otlpmetrichttp.WithEndpointURL(otlp.Endpoint))
	} else if otlp.Endpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(otlp.Endpoint))
	}
	if otlp.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlp.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlp.Headers))
	}
	return opts
}

func (m *Manager) collectionInterval() time.Duration {
	if m.config.CollectionInterval > 0 {
		return m.config.CollectionInterval
	}
	return 15 * time.Second
}

// Enabled reports whether telemetry is exported
func (m *Manager) Enabled() bool {
	return m != nil && m.config.Enabled
}

// Tracer returns a tracer for the service
func (m *Manager) Tracer(name string) oteltrace.Tracer {
	if m == nil || m.tracerProvider == nil {
		return tracenoop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Shutdown flushes and stops every exporter and the Prometheus server
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.promServer != nil {
		if err := m.promServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("prometheus server: %w", err))
		}
		m.promServer = nil
	}
	for _, shutdown := range m.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.shutdownFuncs = nil
	return stderrors.Join(errs...)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveAIOperation records one AI call. It satisfies ai.Observer.
func (m *Manager) ObserveAIOperation(ctx context.Context, operation string, duration time.Duration, usage *ai.TokenUsage, err error) {
	if m == nil || m.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", outcome(err)),
	)
	m.metrics.AIOperations.Add(ctx, 1, attrs)
	m.metrics.AIDuration.Record(ctx, duration.Seconds(), attrs)

	if usage == nil {
		return
	}
	tokenKinds := []struct {
		kind  string
		value int64
	}{
		{"input", usage.InputTokens},
		{"output", usage.OutputTokens},
		{"total", usage.TotalTokens},
	}
	for _, tk := range tokenKinds {
		if tk.value <= 0 {
			continue
		}
		m.metrics.AITokens.Add(ctx, tk.value, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("kind", tk.kind),
		))
	}
}

// ObserveTransition counts a session lifecycle transition
func (m *Manager) ObserveTransition(from, to types.LifecycleState) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

// RecordExport counts an exported document of the given kind (resume, cover_letter)
func (m *Manager) RecordExport(ctx context.Context, kind string, err error) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.Exports.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", outcome(err)),
	))
}

// RecordRateLimitHit counts a rejected request. by is "ip" or "api_key".
func (m *Manager) RecordRateLimitHit(ctx context.Context, by string) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("by", by)))
}

// RecordCertReload counts a certificate reload attempt
func (m *Manager) RecordCertReload(ctx context.Context, err error) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.CertReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", outcome(err))))
}
