package hubwire

import (
	"reflect"
	"sync"
)

// Handler receives the decoded payload of a dispatched event. The concrete
// payload type per event is the one registered in packet.go; unknown events
// arrive as raw JSON.
type Handler func(payload any)

type handlerEntry struct {
	id uint64
	fn Handler
}

// Dispatcher routes named events to registered handlers.
//
// Registration hands back an unsubscribe closure, so anonymous handlers can
// be removed without keeping the function value around. Handlers run
// synchronously in registration order; a panicking handler is recovered and
// logged and never starves its siblings.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventName][]handlerEntry
	nextID   uint64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventName][]handlerEntry)}
}

// On registers fn for event and returns a closure removing exactly this
// registration. The closure is idempotent.
func (d *Dispatcher) On(event EventName, fn Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.handlers[event] = append(d.handlers[event], handlerEntry{id: id, fn: fn})
	d.mu.Unlock()

	return func() {
		d.remove(event, id)
	}
}

func (d *Dispatcher) remove(event EventName, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entries := d.handlers[event]
	for i, e := range entries {
		if e.id == id {
			d.handlers[event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(d.handlers[event]) == 0 {
		delete(d.handlers, event)
	}
}

// Off removes handlers for event. Without explicit handlers every
// registration for the event is dropped; otherwise only the given handler
// values are removed, matched by function identity.
func (d *Dispatcher) Off(event EventName, fns ...Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(fns) == 0 {
		delete(d.handlers, event)
		return
	}
	entries := d.handlers[event]
	kept := make([]handlerEntry, 0, len(entries))
	for _, e := range entries {
		if !containsHandler(fns, e.fn) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(d.handlers, event)
	} else {
		d.handlers[event] = kept
	}
}

func containsHandler(fns []Handler, fn Handler) bool {
	ptr := reflect.ValueOf(fn).Pointer()
	for _, candidate := range fns {
		if reflect.ValueOf(candidate).Pointer() == ptr {
			return true
		}
	}
	return false
}

// Dispatch invokes every handler registered for event with payload.
func (d *Dispatcher) Dispatch(event EventName, payload any) {
	d.mu.RLock()
	entries := d.handlers[event]
	d.mu.RUnlock()

	for _, e := range entries {
		d.call(event, e.fn, payload)
	}
}

func (d *Dispatcher) call(event EventName, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			dispatch_log.Warnf(`handler for "%s" panicked: %v`, event, r)
		}
	}()
	fn(payload)
}

// HandlerCount reports the number of handlers registered for event.
func (d *Dispatcher) HandlerCount(event EventName) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}
