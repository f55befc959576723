package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider owns the OpenTelemetry meter and tracer providers and the
// metric instruments built on them. A disabled provider hands out no-op
// instruments so callers never need to nil-check.
type Provider struct {
	config Config

	meterProvider    metric.MeterProvider
	sdkMeterProvider *sdkmetric.MeterProvider
	tracerProvider   *sdktrace.TracerProvider
	registry         *promclient.Registry

	metrics *Metrics
}

// NewProvider creates and installs the OpenTelemetry providers described by
// config. When config.Enabled is false it returns a no-op provider.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instrumentation config: %w", err)
	}

	p := &Provider{config: config}

	if !config.Enabled {
		p.meterProvider = noop.NewMeterProvider()
		metrics, err := NewMetrics(p.meterProvider.Meter(TracerName), config.DetailedLabels)
		if err != nil {
			return nil, err
		}
		p.metrics = metrics
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if err := p.initMetrics(ctx, res); err != nil {
		return nil, err
	}

	if err := p.initTracing(ctx, res); err != nil {
		_ = p.sdkMeterProvider.Shutdown(ctx)
		return nil, err
	}

	metrics, err := NewMetrics(p.meterProvider.Meter(TracerName), config.DetailedLabels)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.metrics = metrics

	return p, nil
}

func (p *Provider) initMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	switch p.config.MetricsExporter {
	case ExporterPrometheus, "":
		p.registry = promclient.NewRegistry()
		p.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := otelprom.New(otelprom.WithRegisterer(p.registry))
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))

	case ExporterOTLP:
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(p.config.OTLPEndpoint)}
		if p.config.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return fmt.Errorf("failed to create otlp metrics exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(p.exportInterval()))))

	case ExporterStdout:
		// stdout carries the MCP stdio transport, so exports go to stderr.
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(p.exportInterval()))))

	case ExporterNone:
	}

	p.sdkMeterProvider = sdkmetric.NewMeterProvider(opts...)
	p.meterProvider = p.sdkMeterProvider
	otel.SetMeterProvider(p.sdkMeterProvider)
	return nil
}

func (p *Provider) initTracing(ctx context.Context, res *resource.Resource) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch p.config.TracingExporter {
	case ExporterOTLP:
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(p.config.OTLPEndpoint)}
		if p.config.OTLPInsecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return fmt.Errorf("failed to create otlp trace exporter: %w", err)
		}

	case ExporterStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}

	default:
		return nil
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(p.config.TraceSamplingRate))),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func (p *Provider) exportInterval() time.Duration {
	if p.config.ExportInterval > 0 {
		return p.config.ExportInterval
	}
	return DefaultMetricInterval
}

// Enabled reports whether instrumentation is active.
func (p *Provider) Enabled() bool {
	return p != nil && p.config.Enabled
}

// Config returns the configuration the provider was built from.
func (p *Provider) Config() Config {
	return p.config
}

// Metrics returns the metric instruments. Never nil for a provider built by NewProvider.
func (p *Provider) Metrics() *Metrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// Meter returns a named meter from the provider.
func (p *Provider) Meter(name string) metric.Meter {
	if p == nil || p.meterProvider == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return p.meterProvider.Meter(name)
}

// PrometheusRegistry returns the registry backing the prometheus exporter,
// or nil when another exporter is configured.
func (p *Provider) PrometheusRegistry() *promclient.Registry {
	if p == nil {
		return nil
	}
	return p.registry
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.sdkMeterProvider != nil {
		if err := p.sdkMeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
