package event

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// DispatchAll dispatches multiple events
	DispatchAll(events []DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
	// Unsubscribe removes a handler
	Unsubscribe(handler EventHandler)
}

// HandlerFunc adapts a function to EventHandler for a fixed set of event names
type HandlerFunc struct {
	fn     func(DomainEvent)
	events []string
}

// On returns a handler calling fn for the named events
func On(fn func(DomainEvent), names ...string) *HandlerFunc {
	if len(names) == 0 {
		names = []string{NameAll}
	}
	return &HandlerFunc{fn: fn, events: names}
}

// Handle calls the wrapped function
func (h *HandlerFunc) Handle(event DomainEvent) error {
	h.fn(event)
	return nil
}

// HandledEvents returns the subscribed names
func (h *HandlerFunc) HandledEvents() []string {
	return h.events
}

// InMemoryDispatcher delivers events synchronously, in order, on the calling
// goroutine. A failing or panicking handler never reaches the caller; it is
// reported through the error hook instead.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	onError  func(DomainEvent, error)
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher. onError may be nil.
func NewInMemoryDispatcher(onError func(DomainEvent, error)) *InMemoryDispatcher {
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		onError:  onError,
	}
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	handlers := d.handlers[event.EventName()]
	// Also get handlers registered for all events
	allHandlers := d.handlers[NameAll]
	combined := make([]EventHandler, 0, len(handlers)+len(allHandlers))
	combined = append(combined, handlers...)
	combined = append(combined, allHandlers...)
	d.mu.RUnlock()

	for _, handler := range combined {
		if err := d.safeHandle(handler, event); err != nil && d.onError != nil {
			d.onError(event, err)
		}
	}
}

func (d *InMemoryDispatcher) safeHandle(h EventHandler, event DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panic: %v", r)
		}
	}()
	return h.Handle(event)
}

// DispatchAll dispatches multiple events
func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	for _, event := range events {
		d.Dispatch(event)
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		handlers := d.handlers[eventName]
		for i, h := range handlers {
			if h == handler {
				d.handlers[eventName] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
	}
}

func responseBody(err error) string {
	var rse *domain.ResponseStatusError
	if errors.As(err, &rse) {
		return rse.Body
	}
	return ""
}
