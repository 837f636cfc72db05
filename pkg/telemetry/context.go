package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides a unified telemetry interface combining logging, tracing, metrics, and events.
type Telemetry struct {
	Logger    *Logger
	Tracer    *Tracer
	Metrics   *Metrics
	Events    *EventPublisher
	Config    *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Initialize logger
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	// Initialize tracer
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Initialize metrics
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	// Initialize event publisher
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// Shutdown in reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}

	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}

	// Metrics server is not explicitly shut down here as it may need to continue
	// serving metrics until the very end of the application lifecycle

	return nil
}

// Flush forces pending trace spans to be exported. Buffered events are not
// flushed here.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// Context Helpers for common instrumentation patterns

// InstrumentedContext creates a context with telemetry, logger fields, and a trace span.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	// Start trace span
	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	// Create logger with operation field
	logger := tel.Logger.WithField("operation", operation)

	// Add trace context to logger if available
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithPlanContext creates a context enriched with plan-level telemetry: a
// plan span, a plan-scoped logger, and a search timer. The planner-outcome
// metric and event are recorded by EndPlanContext.
func WithPlanContext(ctx context.Context, planID, optimizeTarget string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartPlanSpan(ctx, planID)

	logger := tel.Logger.WithPlanID(planID).WithField("optimize_target", optimizeTarget)
	spanCtx = logger.WithContext(spanCtx)

	spanCtx = context.WithValue(spanCtx, planSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, planTimerKey{}, NewTimer())

	return spanCtx
}

// planSpanKey is the context key for plan spans.
type planSpanKey struct{}

// planTimerKey is the context key for the plan-search timer.
type planTimerKey struct{}

// EndPlanContext completes the plan context, recording the search outcome
// as metrics, a trace span, and a plan.found/plan.not_found event.
func EndPlanContext(ctx context.Context, planID, optimizeTarget string, steps int, cost float64, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(planSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(planTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	outcome := "found"
	if err != nil {
		outcome = "not_found"
	}
	tel.Metrics.RecordPlanSearch(optimizeTarget, outcome, duration, steps)

	if err != nil {
		_ = tel.Events.PublishPlanNotFound(planID, err.Error())
	} else {
		_ = tel.Events.PublishPlanFound(planID, steps, cost)
	}
}

// WithStepContext creates a context enriched with plan-step telemetry.
func WithStepContext(ctx context.Context, planID string, stepIndex int, converterID string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	spanCtx, span := tel.Tracer.StartStepSpan(ctx, planID, stepIndex, converterID)

	logger := tel.Logger.
		WithPlanID(planID).
		WithStepIndex(stepIndex).
		WithConverter(converterID)
	spanCtx = logger.WithContext(spanCtx)

	_ = tel.Events.PublishStepStarted(planID, stepIndex, converterID)

	spanCtx = context.WithValue(spanCtx, stepSpanKey{}, span)
	spanCtx = context.WithValue(spanCtx, stepTimerKey{}, NewTimer())

	return spanCtx
}

// stepSpanKey is the context key for plan-step spans.
type stepSpanKey struct{}

// stepTimerKey is the context key for plan-step timers.
type stepTimerKey struct{}

// EndStepContext completes the plan-step context, recording metrics and events.
func EndStepContext(ctx context.Context, planID string, stepIndex int, converterID, status string, err error) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}

	if span, ok := ctx.Value(stepSpanKey{}).(trace.Span); ok {
		if err != nil {
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	var duration time.Duration
	if timer, ok := ctx.Value(stepTimerKey{}).(*Timer); ok {
		duration = timer.Duration()
	}

	tel.Metrics.RecordStepExecution(converterID, status, duration)

	if err != nil {
		_ = tel.Events.PublishStepFailed(planID, stepIndex, converterID, err.Error())
	} else {
		_ = tel.Events.PublishStepCompleted(planID, stepIndex, converterID, duration)
	}
}

// WithConverterContext creates a context enriched with converter-specific telemetry.
func WithConverterContext(ctx context.Context, converterID string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}

	logger := tel.Logger.WithConverter(converterID)
	return logger.WithContext(ctx)
}

// RecordConverterOperation records a converter entry-point invocation with
// metrics and tracing, running fn and reporting its outcome.
func RecordConverterOperation(ctx context.Context, converterID, entrypoint string, fn func() error) error {
	tel := FromTelemetryContext(ctx)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartConverterSpan(ctx, converterID, entrypoint)
		defer span.End()
	}

	timer := NewTimer()

	err := fn()

	if tel != nil {
		duration := timer.Duration()
		tel.Metrics.RecordConverterCall(converterID, entrypoint, duration)
		if err != nil {
			tel.Metrics.RecordConverterError(converterID, "conversion_failed")
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
