package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test-service")

	if config.ServiceName != "test-service" {
		t.Errorf("Expected service name 'test-service', got '%s'", config.ServiceName)
	}

	if config.ServiceVersion == "" {
		t.Error("Service version should not be empty")
	}

	if config.CollectorEndpoint == "" {
		t.Error("Collector endpoint should not be empty")
	}

	if config.SamplingRate < 0.0 || config.SamplingRate > 1.0 {
		t.Errorf("Sampling rate out of bounds: %.2f", config.SamplingRate)
	}
}

func TestEvaluationAttributes(t *testing.T) {
	attrs := EvaluationAttributes(200, 3, 75.0, 1, false)

	if len(attrs) != 5 {
		t.Errorf("Expected 5 attributes, got %d", len(attrs))
	}

	// Verify key attribute exists
	found := false
	for _, attr := range attrs {
		if attr.Key == AttrBatchSize && attr.Value.AsInt64() == 200 {
			found = true
			break
		}
	}
	if !found {
		t.Error("Batch size attribute not found")
	}
}

func TestDriftAttributes(t *testing.T) {
	attrs := DriftAttributes("psi", true, "medium", 2)

	if len(attrs) != 4 {
		t.Errorf("Expected 4 attributes, got %d", len(attrs))
	}
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// This will use the global no-op tracer since we haven't initialized OTel
	ctx, span := StartSpan(ctx, "test-tracer", "test-span",
		attribute.String("test.key", "test.value"),
	)

	if ctx == nil {
		t.Error("Context should not be nil")
	}

	if span == nil {
		t.Error("Span should not be nil")
	}

	span.End()
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()
	_, span := StartSpan(ctx, "test-tracer", "test-span")

	// Should not panic
	RecordError(span, nil, "")
	RecordError(span, errors.New("boom"), "test message")
	RecordError(nil, errors.New("boom"), "")

	span.End()
}

func TestShutdown_NilProvider(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown(nil) = %v, want nil", err)
	}
}
