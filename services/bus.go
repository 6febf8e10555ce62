package services

import (
	"sync"

	"stayhub/realtime-service/models"
	"stayhub/realtime-service/utils"
)

// EventHandler consumes one domain event
type EventHandler func(event models.DomainEvent)

// EventBus is an in-process publish/subscribe bus. Handlers are registered
// explicitly per event type at startup; Publish dispatches synchronously in
// registration order. A panicking handler is recovered and logged so it
// cannot take down the business operation that published the event.
type EventBus struct {
	logger *utils.Logger

	mu       sync.RWMutex
	handlers map[models.EventType][]EventHandler
}

func NewEventBus(logger *utils.Logger) *EventBus {
	return &EventBus{
		logger:   logger,
		handlers: make(map[models.EventType][]EventHandler),
	}
}

// Subscribe registers a handler for one event type
func (b *EventBus) Subscribe(eventType models.EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to every handler registered for its type
func (b *EventBus) Publish(event models.DomainEvent) {
	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(handler, event)
	}
}

func (b *EventBus) dispatch(handler EventHandler, event models.DomainEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Event handler panicked", "event_type", event.Type, "entity_id", event.EntityID, "panic", rec)
		}
	}()
	handler(event)
}
