// Package telemetry provides observability instrumentation for the
// conversion engine.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and event publishing into a
// unified system for monitoring and debugging planning and execution.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "transmute"
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("planner")
//	logger = logger.WithPlanID("plan-123").WithConverter("image.resize")
//	logger.Info("Searching for a conversion plan")
//	logger.WithError(err).Error("Planning failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into plan search and step execution:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    attribute.String("plan.id", planID),
//	    attribute.String("converter.id", converterID),
//	)
//
//	// Record events
//	span.AddEvent("validation.complete")
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track planner and executor behavior:
//
//	// Record a plan search
//	tel.Metrics.RecordPlanSearch("speed", "found", duration, len(plan.Steps))
//
//	// Record a step execution
//	tel.Metrics.RecordStepExecution("image.resize", "succeeded", duration)
//
//	// Record converter calls
//	tel.Metrics.RecordConverterCall("image.resize", "convert", duration)
//
//	// Record errors
//	tel.Metrics.RecordError("conversion_failed")
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	// Publish events
//	tel.Events.PublishPlanFound(planID, len(plan.Steps), plan.Cost)
//	tel.Events.PublishStepCompleted(planID, stepIndex, converterID, duration)
//	tel.Events.PublishMemoryBlocked(planID, requested)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// Event filters: FilterByLevel, FilterByType, FilterByPlanID, FilterByConverterID
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Instrument an arbitrary operation
//	ic := telemetry.StartOperation(ctx, "validate_workflow",
//	    attribute.String("workflow.source", "glob"))
//	defer ic.End(err)
//
//	ic.Logger.Info("Validating workflow")
//
//	// Plan context
//	ctx = telemetry.WithPlanContext(ctx, planID, "speed")
//	defer telemetry.EndPlanContext(ctx, planID, "speed", len(plan.Steps), plan.Cost, err)
//
//	// Plan-step context
//	ctx = telemetry.WithStepContext(ctx, planID, stepIndex, converterID)
//	defer telemetry.EndStepContext(ctx, planID, stepIndex, converterID, status, err)
//
//	// Converter operation
//	err := telemetry.RecordConverterOperation(ctx, "image.resize", "convert", func() error {
//	    _, err := impl.Convert(ctx, data, props)
//	    return err
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
//	// Custom configuration
//	cfg := &telemetry.Config{
//	    ServiceName: "transmute",
//	    ServiceVersion: "1.0.0",
//	    Environment: "staging",
//	    Logging: telemetry.LoggingConfig{
//	        Level: "info",
//	        Format: "json",
//	    },
//	    Tracing: telemetry.TracingConfig{
//	        Enabled: true,
//	        Exporter: "otlp",
//	        Endpoint: "otel-collector:4317",
//	        SamplingRate: 0.1,
//	    },
//	    Metrics: telemetry.MetricsConfig{
//	        Enabled: true,
//	        ListenAddress: ":9090",
//	    },
//	}
//
// # Performance Considerations
//
// The telemetry system is designed for minimal overhead:
//
//  - Structured logging uses zerolog's zero-allocation approach
//  - Tracing uses sampling to reduce data volume in production
//  - Metrics use Prometheus's efficient storage format
//  - Events are buffered and batched to reduce I/O
//  - All operations are non-blocking when possible
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("telemetry shutdown error: %v", err)
//	}
//
// This ensures:
//  - All buffered events are published
//  - All pending traces are exported
//
// Metrics are not touched by Shutdown; the metrics server keeps serving.
//
// # Integration with the Conversion Engine
//
// The planner and executor packages integrate with telemetry when a
// *Telemetry is carried on the context:
//
//  1. Plan search: plan.found/plan.not_found events and duration histograms
//  2. Plan steps: per-step tracing with converter context
//  3. Converters: call counts, durations, and error classification
//  4. Memory budget: reservation/denial events and in-use gauges
//
// # Exporters
//
// Tracing supports multiple exporters:
//
//  - "stdout": Print traces to stdout (development)
//  - "otlp": Export via OTLP/gRPC (production, works with collectors)
//  - "none": Generate traces but don't export (testing)
//
// Configure via TracingConfig.Exporter and TracingConfig.Endpoint
//
// # Best Practices
//
//  1. Always use context to propagate telemetry
//  2. Use component-specific loggers for clarity
//  3. Add meaningful attributes to spans
//  4. Record both success and failure metrics
//  5. Use appropriate log levels
//  6. Filter events to avoid overwhelming subscribers
//  7. Always call defer span.End() after starting a span
//  8. Shut down gracefully to avoid data loss
//
// # Security Considerations
//
//  - Never log sensitive data (credentials, keys, tokens)
//  - Use secure connections (TLS) for trace exporters in production
//  - Limit metrics endpoint access via network policies
package telemetry
