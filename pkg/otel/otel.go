// Package otel bootstraps OpenTelemetry tracing for the fairness service
// and defines the span attributes used across evaluation, drift detection
// and alerting.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds OpenTelemetry configuration.
type Config struct {
	ServiceName       string
	ServiceVersion    string
	Environment       string
	CollectorEndpoint string
	SamplingRate      float64 // 0.0 to 1.0 (1.0 = always sample)
}

// DefaultConfig returns development defaults: a local collector and full
// sampling.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName:       serviceName,
		ServiceVersion:    "1.0.0",
		Environment:       "production",
		CollectorEndpoint: "localhost:4317",
		SamplingRate:      1.0,
	}
}

// InitTracer creates an OTLP exporter, installs the global tracer provider
// and returns it for shutdown.
func InitTracer(ctx context.Context, config *Config) (*sdktrace.TracerProvider, error) {
	if config == nil {
		config = DefaultConfig("rawls")
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(config.CollectorEndpoint),
		otlptracegrpc.WithInsecure(), // Use WithTLSCredentials in production
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(config.SamplingRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return tp.Shutdown(ctx)
}

// StartSpan starts a span on the named tracer with optional attributes.
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, spanName)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// RecordError records an error on a span and marks the span status.
func RecordError(span trace.Span, err error, message string) {
	if span == nil || err == nil {
		return
	}
	if message != "" {
		span.RecordError(err, trace.WithAttributes(
			attribute.String("error.message", message),
		))
	} else {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, err.Error())
}

// Span attribute keys.
const (
	AttrBatchSize    = attribute.Key("fairness.batch_size")
	AttrGroupCount   = attribute.Key("fairness.group_count")
	AttrOverallScore = attribute.Key("fairness.overall_score")
	AttrViolations   = attribute.Key("fairness.violations")
	AttrPassesBasic  = attribute.Key("fairness.passes_basic")

	AttrDriftMethod   = attribute.Key("drift.method")
	AttrDriftDetected = attribute.Key("drift.detected")
	AttrDriftSeverity = attribute.Key("drift.severity")
	AttrNumDrifted    = attribute.Key("drift.num_drifted")

	AttrAlertID       = attribute.Key("alert.id")
	AttrAlertChannels = attribute.Key("alert.channels")

	AttrBaselineName = attribute.Key("baseline.name")
	AttrStoreBackend = attribute.Key("store.backend")
)

// EvaluationAttributes describe one calculator run.
func EvaluationAttributes(batchSize, groupCount int, overallScore float64, violations int, passes bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrBatchSize.Int(batchSize),
		AttrGroupCount.Int(groupCount),
		AttrOverallScore.Float64(overallScore),
		AttrViolations.Int(violations),
		AttrPassesBasic.Bool(passes),
	}
}

// DriftAttributes describe one drift detection.
func DriftAttributes(method string, detected bool, severity string, numDrifted int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDriftMethod.String(method),
		AttrDriftDetected.Bool(detected),
		AttrDriftSeverity.String(severity),
		AttrNumDrifted.Int(numDrifted),
	}
}
