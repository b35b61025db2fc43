package events

import (
	"errors"
	"sync"
)

// Handler consumes one event. A returned error is handed back to the
// caller of the mutation that raised the event.
type Handler func(GraphEvent) error

// Dispatcher delivers events synchronously to subscribers in subscription order.
// Publish returns only after every handler has run.
type Dispatcher struct {
	mu       sync.RWMutex
	nextID   int
	handlers []subscription
}

type subscription struct {
	id      int
	handler Handler
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers h and returns a function that removes it
func (d *Dispatcher) Subscribe(h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.handlers = append(d.handlers, subscription{id: id, handler: h})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.handlers {
			if s.id == id {
				d.handlers = append(d.handlers[:i:i], d.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers each event to every handler, in order. All handlers see
// every event even when one fails; the failures are joined.
func (d *Dispatcher) Publish(evts ...GraphEvent) error {
	d.mu.RLock()
	handlers := make([]subscription, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.RUnlock()

	var errs []error
	for _, evt := range evts {
		for _, s := range handlers {
			if err := s.handler(evt); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of active subscriptions
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}
