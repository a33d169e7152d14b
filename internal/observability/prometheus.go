package observability

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"cohortlens/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// prometheusExporter pairs the OTel reader with its own registry so several
// managers can coexist in one process
type prometheusExporter struct {
	cfg      config.PrometheusConfig
	registry *prometheus.Registry
	reader   sdkmetric.Reader
	server   *http.Server
}

func newPrometheusExporter(cfg config.PrometheusConfig) (*prometheusExporter, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reader, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/metrics"
	}
	return &prometheusExporter{cfg: cfg, registry: registry, reader: reader}, nil
}

func (p *prometheusExporter) handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *prometheusExporter) shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

// MetricsHandler serves the Prometheus scrape endpoint, or 404 when the
// exporter is disabled
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil || m.prometheus == nil {
		return http.NotFoundHandler()
	}
	return m.prometheus.handler()
}

// StartPrometheusServer serves the scrape endpoint on the dedicated port in
// the background. It does nothing when the exporter is disabled or no port is
// configured.
func (m *Manager) StartPrometheusServer() error {
	if m == nil || m.prometheus == nil || m.prometheus.cfg.Port == "" {
		return nil
	}
	p := m.prometheus

	mux := http.NewServeMux()
	mux.Handle(p.cfg.Endpoint, p.handler())

	listener, err := net.Listen("tcp", ":"+p.cfg.Port)
	if err != nil {
		return fmt.Errorf("failed to listen for Prometheus metrics: %w", err)
	}
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	m.logger.Info("Prometheus metrics server started", "address", listener.Addr().String(), "endpoint", p.cfg.Endpoint)
	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			m.logger.LogError(err, "Prometheus server stopped")
		}
	}()
	return nil
}
