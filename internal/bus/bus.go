// Package bus implements the dispatch registry that decouples inbound server
// events from their consumers.
//
// Consumers subscribe to named event types; the realtime manager publishes
// every inbound event through an identical code path regardless of which
// transport produced it. A handler that panics is isolated and logged; it
// never prevents delivery to sibling subscribers.
package bus

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/shiftgrid/realtime/internal/model"
)

// Handler receives the raw payload of a matching event.
type Handler func(payload json.RawMessage)

// UnsubscribeFunc removes a subscription. Safe to call more than once.
type UnsubscribeFunc func()

// Bus routes published events to subscribed handlers.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int64
	subs   map[string]map[int64]Handler
}

// New creates an empty dispatch registry.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[string]map[int64]Handler),
	}
}

// Subscribe registers a handler for an event type. Multiple handlers per
// type are allowed; no ordering is guaranteed among them.
func (b *Bus) Subscribe(eventType string, h Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	handlers, ok := b.subs[eventType]
	if !ok {
		handlers = make(map[int64]Handler)
		b.subs[eventType] = handlers
	}
	handlers[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[eventType]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, eventType)
			}
		}
	}
}

// Publish delivers an event to every handler subscribed to its type.
// Delivery is synchronous; handlers must not block.
func (b *Bus) Publish(eventType string, payload json.RawMessage) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[eventType]))
	for _, h := range b.subs[eventType] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(eventType, h, payload)
	}
}

// dispatch invokes a single handler, containing panics so one misbehaving
// subscriber cannot halt delivery to the rest.
func (b *Bus) dispatch(eventType string, h Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				"event_type", eventType,
				"panic", r,
			)
		}
	}()
	h(payload)
}

// PublishStateChange publishes the reserved connection-state event.
func (b *Bus) PublishStateChange(change model.StateChange) {
	payload, err := json.Marshal(change)
	if err != nil {
		b.logger.Error("marshal state change", "error", err)
		return
	}
	b.Publish(model.EventConnectionStateChanged, payload)
}

// SubscriberCount returns the number of handlers for an event type.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}

// On subscribes a typed handler: payloads are decoded into T before delivery.
// Payloads that fail to decode are logged and dropped for that subscriber.
func On[T any](b *Bus, eventType string, h func(T)) UnsubscribeFunc {
	return b.Subscribe(eventType, func(payload json.RawMessage) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			b.logger.Warn("drop undecodable payload",
				"event_type", eventType,
				"error", err,
			)
			return
		}
		h(v)
	})
}
