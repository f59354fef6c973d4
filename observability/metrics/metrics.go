package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricExporter owns the meter provider of a process and ships its metrics over OTLP.
type MetricExporter struct {
	meterProvider    *sdkmetric.MeterProvider
	meter            metric.Meter
	serviceName      string
	serviceNamespace string
	serviceVersion   string
	otlpEndpoint     string
	otlpGRPCEndpoint string
	environment      string
	interval         time.Duration
	reader           sdkmetric.Reader
	setGlobal        bool
}

// Option is a function that configures a MetricExporter
type Option func(*MetricExporter)

func WithServiceName(name string) Option {
	return func(mc *MetricExporter) {
		mc.serviceName = name
	}
}

func WithServiceNamespace(namespace string) Option {
	return func(mc *MetricExporter) {
		mc.serviceNamespace = namespace
	}
}

func WithServiceVersion(version string) Option {
	return func(mc *MetricExporter) {
		mc.serviceVersion = version
	}
}

// WithOTLPEndpoint sets the OTLP HTTP endpoint
func WithOTLPEndpoint(endpoint string) Option {
	return func(mc *MetricExporter) {
		mc.otlpEndpoint = endpoint
	}
}

// WithOTLPGRPCEndpoint sets the OTLP gRPC endpoint. It takes precedence over HTTP.
func WithOTLPGRPCEndpoint(endpoint string) Option {
	return func(mc *MetricExporter) {
		mc.otlpGRPCEndpoint = endpoint
	}
}

// WithEnvironment sets the deployment environment
func WithEnvironment(env string) Option {
	return func(mc *MetricExporter) {
		mc.environment = env
	}
}

// WithInterval sets how often metrics are pushed. Default: 10s.
func WithInterval(d time.Duration) Option {
	return func(mc *MetricExporter) {
		if d > 0 {
			mc.interval = d
		}
	}
}

// WithReader replaces the OTLP pipeline with reader, e.g. a ManualReader in tests.
func WithReader(reader sdkmetric.Reader) Option {
	return func(mc *MetricExporter) {
		mc.reader = reader
	}
}

// WithoutGlobal keeps the provider out of otel's global registry.
func WithoutGlobal() Option {
	return func(mc *MetricExporter) {
		mc.setGlobal = false
	}
}

func defaultConfig() *MetricExporter {
	return &MetricExporter{
		serviceName:      "chat-server",
		serviceNamespace: "default",
		serviceVersion:   "1.0.0",
		otlpEndpoint:     "localhost:4318",
		environment:      "development",
		interval:         10 * time.Second,
		setGlobal:        true,
	}
}

// NewMetricExporter builds the meter provider. Unless WithoutGlobal is given
// it is installed as the global provider, so instruments built from
// otel.Meter start reporting through it.
func NewMetricExporter(ctx context.Context, opts ...Option) (*MetricExporter, error) {
	mc := defaultConfig()
	for _, opt := range opts {
		opt(mc)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(mc.serviceName),
			semconv.ServiceNamespace(mc.serviceNamespace),
			semconv.ServiceVersion(mc.serviceVersion),
			semconv.DeploymentEnvironment(mc.environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mc.reader
	if reader == nil {
		exporter, err := mc.newExporter(ctx)
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(mc.interval))
	}

	mc.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	if mc.setGlobal {
		otel.SetMeterProvider(mc.meterProvider)
	}
	mc.meter = mc.meterProvider.Meter(mc.serviceName)
	return mc, nil
}

func (mc *MetricExporter) newExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	if mc.otlpGRPCEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mc.otlpGRPCEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
		}
		return exporter, nil
	}
	if mc.otlpEndpoint == "" {
		return nil, fmt.Errorf("OTLP HTTP endpoint is required when gRPC endpoint is not configured")
	}
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(mc.otlpEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}

// Meter returns the meter named after the service.
func (mc *MetricExporter) Meter() metric.Meter {
	return mc.meter
}

// Close flushes pending metrics and shuts the provider down.
func (mc *MetricExporter) Close(ctx context.Context) error {
	return mc.meterProvider.Shutdown(ctx)
}
