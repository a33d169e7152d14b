// Package observability sets up OpenTelemetry tracing and metrics for the
// analytics pipeline and exposes the recorders the services report to.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"cohortlens/internal/config"
	"cohortlens/internal/errors"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultCollectionInterval = 15 * time.Second

// Manager owns the tracer and meter providers and the custom instruments.
// A nil or disabled Manager records nothing.
type Manager struct {
	cfg    config.ObservabilityConfig
	logger *errors.Logger

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	instruments    *instruments
	prometheus     *prometheusExporter
	shutdownFuncs  []func(context.Context) error
}

// NewManager builds the providers described by cfg. version is used when no
// service version is configured.
func NewManager(cfg *config.Config, version string, logger *errors.Logger) (*Manager, error) {
	return newManager(cfg, version, logger)
}

func newManager(cfg *config.Config, version string, logger *errors.Logger, extraReaders ...sdkmetric.Reader) (*Manager, error) {
	obs := config.Default().Observability
	if cfg != nil {
		obs = cfg.Observability
	}
	if obs.ServiceVersion == "" {
		obs.ServiceVersion = version
	}
	if obs.ServiceName == "" {
		obs.ServiceName = "cohortlens"
	}

	m := &Manager{cfg: obs, logger: logger}
	if !obs.Enabled {
		return m, nil
	}

	res, err := m.resource()
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to create telemetry resource", err)
	}
	if err := m.initTracing(res); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize tracing", err)
	}
	if obs.Metrics.Enabled || len(extraReaders) > 0 {
		if err := m.initMetrics(res, extraReaders); err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig, "failed to initialize metrics", err)
		}
	}

	logger.Debug("Observability initialized",
		"service", obs.ServiceName,
		"console", obs.ConsoleOutput,
		"otlp", obs.OTLP.Enabled,
		"prometheus", m.prometheus != nil)
	return m, nil
}

func (m *Manager) resource() (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(m.cfg.ServiceName),
			semconv.ServiceVersion(m.cfg.ServiceVersion),
			attribute.String("service.instance.id", m.serviceInstanceID()),
		),
	)
}

func (m *Manager) initTracing(res *resource.Resource) error {
	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(m.cfg.SampleRate))),
	}

	var exporter trace.SpanExporter
	var err error
	switch {
	case m.cfg.ConsoleOutput:
		// stdout carries command output, so spans go to stderr
		stdoutOpts := []stdouttrace.Option{stdouttrace.WithWriter(os.Stderr)}
		if m.cfg.Console.PrettyPrint {
			stdoutOpts = append(stdoutOpts, stdouttrace.WithPrettyPrint())
		}
		exporter, err = stdouttrace.New(stdoutOpts...)
	case m.cfg.OTLP.Enabled:
		exporter, err = m.otlpTraceExporter()
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	m.tracerProvider = tp
	m.shutdownFuncs = append(m.shutdownFuncs, tp.Shutdown)
	return nil
}

func (m *Manager) initMetrics(res *resource.Resource, extraReaders []sdkmetric.Reader) error {
	readers, err := m.metricReaders()
	if err != nil {
		return err
	}
	readers = append(readers, extraReaders...)
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewManualReader())
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, reader := range readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m.meterProvider = mp
	m.shutdownFuncs = append(m.shutdownFuncs, mp.Shutdown)

	inst, err := newInstruments(mp.Meter(m.cfg.ServiceName))
	if err != nil {
		return err
	}
	m.instruments = inst
	return nil
}

func (m *Manager) metricReaders() ([]sdkmetric.Reader, error) {
	var readers []sdkmetric.Reader
	interval := m.collectionInterval()

	if m.cfg.ConsoleOutput {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	}

	if m.cfg.OTLP.Enabled {
		exporter, err := m.otlpMetricExporter()
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)))
	}

	if m.cfg.Prometheus.Enabled {
		exp, err := newPrometheusExporter(m.cfg.Prometheus)
		if err != nil {
			return nil, err
		}
		m.prometheus = exp
		readers = append(readers, exp.reader)
	}
	return readers, nil
}

func (m *Manager) otlpTraceExporter() (trace.SpanExporter, error) {
	otlp := m.cfg.OTLP
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(otlp.Endpoint)}
	if otlp.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(otlp.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(otlp.Headers))
	}
	return otlptracehttp.New(context.Background(), opts...)
}

func (m *Manager) otlpMetricExporter() (sdkmetric.Exporter, error) {
	otlp := m.cfg.OTLP
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(otlp.Endpoint)}
	if otlp.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(otlp.Headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(otlp.Headers))
	}
	return otlpmetrichttp.New(context.Background(), opts...)
}

// HTTPMiddleware wraps a handler with otelhttp server instrumentation
func (m *Manager) HTTPMiddleware() func(http.Handler) http.Handler {
	if m == nil || m.tracerProvider == nil {
		return func(h http.Handler) http.Handler { return h }
	}
	opts := []otelhttp.Option{otelhttp.WithTracerProvider(m.tracerProvider)}
	if m.meterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(m.meterProvider))
	}
	return otelhttp.NewMiddleware(m.cfg.ServiceName, opts...)
}

// Tracer returns a named tracer, or a no-op tracer when tracing is off
func (m *Manager) Tracer(name string) oteltrace.Tracer {
	if m == nil || m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Shutdown flushes and stops every provider
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var first error
	for _, shutdown := range m.shutdownFuncs {
		if err := shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	if m.prometheus != nil {
		if err := m.prometheus.shutdown(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manager) serviceInstanceID() string {
	if m.cfg.ServiceInstance != "" {
		return m.cfg.ServiceInstance
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return m.cfg.ServiceName + "-" + host
	}
	return m.cfg.ServiceName + "-1"
}

func (m *Manager) collectionInterval() time.Duration {
	if m.cfg.Metrics.CollectionInterval > 0 {
		return m.cfg.Metrics.CollectionInterval
	}
	return defaultCollectionInterval
}
