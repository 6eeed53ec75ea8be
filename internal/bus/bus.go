// Package bus provides an in-process event bus for analysis and generation
// notifications.
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

const (
	// Analysis events
	EventTypeAnalysisStarted   EventType = "analysis.started"
	EventTypeAnalysisCacheHit  EventType = "analysis.cache_hit"
	EventTypeAnalysisCompleted EventType = "analysis.completed"
	EventTypeAnalysisFailed    EventType = "analysis.failed"
	EventTypeAnalysisCancelled EventType = "analysis.cancelled"

	// Generation events
	EventTypeGenerated EventType = "generation.completed"
	EventTypeCleaned   EventType = "generation.cleaned"

	// Preset events
	EventTypePresetChanged EventType = "preset.changed"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Time time.Time
	Data map[string]any
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, data map[string]any) Event {
	return Event{Type: t, Time: time.Now(), Data: data}
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without blocking.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(event)
		}(handler)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	var wg sync.WaitGroup
	for _, handler := range b.snapshot(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Wait blocks until handlers started by Publish have returned.
func (b *EventBus) Wait() {
	b.wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
