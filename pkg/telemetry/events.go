package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the conversion engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// PlanID is the associated plan ID, if applicable.
	PlanID string `json:"plan_id,omitempty"`

	// StepIndex is the associated plan step index, if applicable.
	StepIndex int `json:"step_index,omitempty"`

	// ConverterID is the associated converter ID, if applicable.
	ConverterID string `json:"converter_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypePlanFound      = "plan.found"
	EventTypePlanNotFound   = "plan.not_found"
	EventTypeStepStarted    = "step.started"
	EventTypeStepCompleted  = "step.completed"
	EventTypeStepFailed     = "step.failed"
	EventTypeMemoryBlocked  = "memory.blocked"
	EventTypeMemoryGranted  = "memory.granted"
	EventTypeBatchStarted   = "batch.started"
	EventTypeBatchCompleted = "batch.completed"
	EventTypeError          = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishPlanFound publishes a plan found event.
func (ep *EventPublisher) PublishPlanFound(planID string, steps int, cost float64) error {
	return ep.Publish(Event{
		Type:    EventTypePlanFound,
		Source:  "planner",
		PlanID:  planID,
		Message: fmt.Sprintf("Plan %s found with %d steps", planID, steps),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"steps": steps,
			"cost":  cost,
		},
	})
}

// PublishPlanNotFound publishes a plan-not-found event.
func (ep *EventPublisher) PublishPlanNotFound(planID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePlanNotFound,
		Source:  "planner",
		PlanID:  planID,
		Message: fmt.Sprintf("No plan found for %s: %s", planID, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStepStarted publishes a plan step started event.
func (ep *EventPublisher) PublishStepStarted(planID string, stepIndex int, converterID string) error {
	return ep.Publish(Event{
		Type:        EventTypeStepStarted,
		Source:      "executor",
		PlanID:      planID,
		StepIndex:   stepIndex,
		ConverterID: converterID,
		Message:     fmt.Sprintf("Step %d started: %s", stepIndex, converterID),
		Level:       EventLevelInfo,
	})
}

// PublishStepCompleted publishes a plan step completed event.
func (ep *EventPublisher) PublishStepCompleted(planID string, stepIndex int, converterID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:        EventTypeStepCompleted,
		Source:      "executor",
		PlanID:      planID,
		StepIndex:   stepIndex,
		ConverterID: converterID,
		Message:     fmt.Sprintf("Step %d completed: %s", stepIndex, converterID),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepFailed publishes a plan step failed event.
func (ep *EventPublisher) PublishStepFailed(planID string, stepIndex int, converterID, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeStepFailed,
		Source:      "executor",
		PlanID:      planID,
		StepIndex:   stepIndex,
		ConverterID: converterID,
		Message:     fmt.Sprintf("Step %d failed: %s: %s", stepIndex, converterID, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishMemoryBlocked publishes an event noting a reservation had to wait
// for budget to free up.
func (ep *EventPublisher) PublishMemoryBlocked(planID string, requested uint64) error {
	return ep.Publish(Event{
		Type:    EventTypeMemoryBlocked,
		Source:  "memory_budget",
		PlanID:  planID,
		Message: fmt.Sprintf("Reservation of %d bytes blocked pending budget", requested),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"requested": requested,
		},
	})
}

// PublishMemoryGranted publishes an event noting a reservation was granted.
func (ep *EventPublisher) PublishMemoryGranted(planID string, amount, inUse uint64) error {
	return ep.Publish(Event{
		Type:    EventTypeMemoryGranted,
		Source:  "memory_budget",
		PlanID:  planID,
		Message: fmt.Sprintf("Reservation of %d bytes granted (%d in use)", amount, inUse),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"amount": amount,
			"in_use": inUse,
		},
	})
}

// PublishBatchStarted publishes a batch execution started event.
func (ep *EventPublisher) PublishBatchStarted(planID string, items int) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchStarted,
		Source:  "executor",
		PlanID:  planID,
		Message: fmt.Sprintf("Batch of %d items started", items),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"items": items,
		},
	})
}

// PublishBatchCompleted publishes a batch execution completed event.
func (ep *EventPublisher) PublishBatchCompleted(planID string, items int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchCompleted,
		Source:  "executor",
		PlanID:  planID,
		Message: fmt.Sprintf("Batch of %d items completed", items),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"items":    items,
			"duration": duration.Seconds(),
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-tick:
			// Flush a partial batch once FlushInterval has elapsed
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events, including any still queued in the
			// buffer, before shutting down
			for len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush runs a ticker until shutdown and flushes nothing itself;
// the FlushInterval flush of a partial batch happens in processEvents.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// The timed flush is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber inline, so delivery has finished when this returns
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByPlanID creates a filter that only allows events for a specific plan.
func FilterByPlanID(planID string) EventFilter {
	return func(event Event) bool {
		return event.PlanID == planID
	}
}

// FilterByConverterID creates a filter that only allows events for a specific converter.
func FilterByConverterID(converterID string) EventFilter {
	return func(event Event) bool {
		return event.ConverterID == converterID
	}
}
