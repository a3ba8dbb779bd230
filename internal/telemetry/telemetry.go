// Package telemetry provides OpenTelemetry instrumentation for the connect
// pipeline. Without an OTLP endpoint the providers record nothing.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/tagconnect/internal/config"
	apperrors "github.com/yairfalse/tagconnect/internal/errors"
)

const instrumentationName = "github.com/yairfalse/tagconnect"

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	discovered      metric.Int64Counter
	authResolutions metric.Int64Counter
	sessionDuration metric.Float64Histogram
	failures        metric.Int64Counter
}

// NewProvider creates a new telemetry provider.
func NewProvider(ctx context.Context, cfg config.OTELConfig) (*Provider, error) {
	return newProvider(ctx, cfg, nil, nil)
}

// newProvider lets tests attach an in-memory span processor and metric reader.
func newProvider(ctx context.Context, cfg config.OTELConfig, spans sdktrace.SpanProcessor, reader sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res, spans); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, reader); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, spans sdktrace.SpanProcessor) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}
	if spans != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(spans))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, reader sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.discovered, err = p.meter.Int64Counter(
		"tagconnect_resources_discovered_total",
		metric.WithDescription("Resources matching the tag filters"),
	)
	if err != nil {
		return fmt.Errorf("create resources_discovered: %w", err)
	}

	p.authResolutions, err = p.meter.Int64Counter(
		"tagconnect_auth_resolutions_total",
		metric.WithDescription("Credential resolutions by method"),
	)
	if err != nil {
		return fmt.Errorf("create auth_resolutions: %w", err)
	}

	p.sessionDuration, err = p.meter.Float64Histogram(
		"tagconnect_session_duration_seconds",
		metric.WithDescription("Duration of client sessions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create session_duration: %w", err)
	}

	p.failures, err = p.meter.Int64Counter(
		"tagconnect_failures_total",
		metric.WithDescription("Pipeline failures by stage and error kind"),
	)
	if err != nil {
		return fmt.Errorf("create failures: %w", err)
	}

	return nil
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, counts it as a failure of stage and ends the span.
func (p *Provider) EndSpan(ctx context.Context, span trace.Span, stage string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", string(apperrors.KindOf(err))),
		))
	}
	span.End()
}

// RecordDiscovered records the number of resources of kind found in region.
func (p *Provider) RecordDiscovered(ctx context.Context, region, kind string, count int) {
	p.discovered.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("region", region),
		attribute.String("kind", kind),
	))
}

// RecordAuthMethod records which credential method was used.
func (p *Provider) RecordAuthMethod(ctx context.Context, method string) {
	p.authResolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordSession records the duration of a client session for engine.
func (p *Provider) RecordSession(ctx context.Context, engine string, d time.Duration) {
	p.sessionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("engine", engine),
	))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
