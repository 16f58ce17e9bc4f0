package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Run lifecycle events
const (
	EventRunStarted      EventType = "run_started"
	EventRunPhaseChanged EventType = "run_phase_changed"
	EventRunCompleted    EventType = "run_completed"
	EventRunFailed       EventType = "run_failed"
)

// Task lifecycle events
const (
	EventTaskReady     EventType = "task_ready"
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskSkipped   EventType = "task_skipped"
)

// Metadata keys attached by publishers.
const (
	MetaRunID  = "run_id"
	MetaTaskID = "task_id"
	MetaPhase  = "phase"
	MetaError  = "error"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened during a run
type Event interface {
	Type() EventType
	Payload() interface{}
	Metadata() map[string]interface{}
	// Timestamp returns when the event occurred, in Unix nanoseconds
	Timestamp() int64
	// Source names the component that generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish queues an event for every subscribed handler
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types and returns
	// a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for every event type
	SubscribeAll(handler EventHandler) (string, error)

	Unsubscribe(subscriptionID string) error

	// Close delivers queued events and stops the bus
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent stamped with the current time
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

func (e *BaseEvent) Type() EventType                  { return e.eventType }
func (e *BaseEvent) Payload() interface{}             { return e.payload }
func (e *BaseEvent) Metadata() map[string]interface{} { return e.metadata }
func (e *BaseEvent) Timestamp() int64                 { return e.timestamp }
func (e *BaseEvent) Source() string                   { return e.sourceInfo }

// WithMetadata adds or updates metadata and returns the same event
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}

// String returns a metadata value as a string, or "" when absent.
func MetaString(ev Event, key string) string {
	if v, ok := ev.Metadata()[key].(string); ok {
		return v
	}
	return ""
}
