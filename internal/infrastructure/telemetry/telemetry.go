// Package telemetry installs the global OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(ctx context.Context) error

// Option configures Setup.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
	version  string
}

// WithExporter replaces the OTLP exporter, mainly for tests.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// WithVersion sets service.version on the resource.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// Setup installs a tracer provider exporting to endpoint over OTLP/HTTP.
// With no endpoint and no exporter option it leaves the global no-op
// provider in place and returns a no-op shutdown.
func Setup(ctx context.Context, endpoint, service string, opts ...Option) (ShutdownFunc, error) {
	o := &options{version: "dev"}
	for _, opt := range opts {
		opt(o)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" && o.exporter == nil {
		return func(context.Context) error { return nil }, nil
	}

	exporter := o.exporter
	if exporter == nil {
		var err error
		exporter, err = otlptracehttp.New(ctx, endpointOptions(endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion(o.version),
		),
		resource.WithFromEnv(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// endpointOptions accepts either host:port or a full http(s) URL.
func endpointOptions(endpoint string) []otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
	}
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	}
}
