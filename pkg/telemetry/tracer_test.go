package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
)

func TestNewTracerDisabledIsNoop(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "transmute", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	ctx, span := tr.Start(context.Background(), "op")
	defer span.End()
	if ctx == nil {
		t.Fatal("expected a non-nil context from Start")
	}
}

func TestNewTracerWithNoneExporter(t *testing.T) {
	tr, err := NewTracer(TracingConfig{
		Enabled:      true,
		Exporter:     "none",
		SamplingRate: 1.0,
	}, "transmute", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer tr.Shutdown(context.Background())

	_, span := tr.StartPlanSpan(context.Background(), "p1")
	defer span.End()
}

func TestNewTracerUnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin"}, "transmute", "dev", "test")
	if err == nil {
		t.Fatal("expected an error for an unsupported trace exporter")
	}
}

func TestStartStepAndConverterSpansCarryAttributes(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "transmute", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}

	_, stepSpan := tr.StartStepSpan(context.Background(), "p1", 2, "resize")
	defer stepSpan.End()

	_, convSpan := tr.StartConverterSpan(context.Background(), "resize", "convert")
	defer convSpan.End()
}

func TestRecordErrorAndRecordSuccessDoNotPanicOnNoopSpan(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "transmute", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	_, span := tr.Start(context.Background(), "op")
	defer span.End()

	RecordError(span, errors.New("boom"))
	RecordSuccess(span)
	SetAttributes(span, AttrPlanID.String("p1"))
	AddPlanEvent(span, "plan.found", "found a plan")
	AddMemoryEvent(span, "memory.granted", "granted 10 bytes")

	_ = codes.Error
}

func TestRecordErrorIgnoresNilError(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "transmute", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	_, span := tr.Start(context.Background(), "op")
	defer span.End()
	RecordError(span, nil) // must not panic or set an error status
}

func TestTraceIDAndSpanIDEmptyWithoutActiveSpan(t *testing.T) {
	ctx := context.Background()
	if TraceID(ctx) != "" {
		t.Fatal("expected empty TraceID without an active span")
	}
	if SpanID(ctx) != "" {
		t.Fatal("expected empty SpanID without an active span")
	}
}

func TestShutdownAndForceFlushOnDisabledTracerAreSafe(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "transmute", "dev", "test")
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	if err := tr.ForceFlush(context.Background()); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}
	if err := tr.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
