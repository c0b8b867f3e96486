package observability

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// newPrometheusReader creates an OTel reader that feeds reg and the handler that serves it.
// A nil reg gets a fresh registry with the Go and process collectors.
func newPrometheusReader(reg *prometheus.Registry) (sdkmetric.Reader, http.Handler, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return exporter, handler, nil
}

// MetricsHandler returns the Prometheus scrape handler, or nil when the exporter is not prometheus.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil {
		return nil
	}
	return m.metricsHandler
}

// startPrometheusServer serves the scrape endpoint on its own port. An empty port disables it.
func (m *Manager) startPrometheusServer() error {
	if m.metricsHandler == nil || m.config.Prometheus.Port == "" {
		return nil
	}

	endpoint := m.config.Prometheus.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, m.metricsHandler)

	addr := ":" + m.config.Prometheus.Port
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start Prometheus server on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	m.promServer = server

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			m.logger.LogError(err, "Prometheus server stopped")
		}
	}()

	m.logger.Info("Prometheus metrics server started", "address", listener.Addr().String(), "endpoint", endpoint)
	return nil
}
