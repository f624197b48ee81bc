// Package telemetry provides OpenTelemetry support for the queue service
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/digitalservices/queue-service/config"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "queue-service"

	instrumentationName = "github.com/digitalservices/queue-service"
)

// Config holds the telemetry configuration
type Config struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64
}

// FromConfig maps the telemetry section of the service config
func FromConfig(cfg config.TelemetryConfig) Config {
	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return Config{
		Enabled:     cfg.Enabled && cfg.OTLPEndpoint != "",
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		SampleRate:  cfg.SampleRate,
	}
}

// Tracer returns the service tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Init initializes OpenTelemetry with the given configuration
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
		return func(context.Context) error { return nil }, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = os.Getenv("VERSION")
		if cfg.ServiceVersion == "" {
			cfg.ServiceVersion = "1.0.0"
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = os.Getenv("ENVIRONMENT")
		if cfg.Environment == "" {
			cfg.Environment = "production"
		}
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
			attribute.String("service.type", "backend"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate(cfg.SampleRate)))),
	)
	otel.SetTracerProvider(tracerProvider)

	// The reader owns the exporter; shutting the provider down flushes and
	// shuts down both.
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown tracer provider: %w", err)
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
		return nil
	}, nil
}

func sampleRate(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}
