// Package bus is the in-process publish/subscribe registry that fans hub
// events out to local listeners, decoupling the transport from presence,
// call-signaling, and UI consumers.
package bus

import (
	"log/slog"
	"sync"

	"github.com/emrsoft/realtime/internal/hubproto"
)

// Handler consumes one published event.  Handlers run on the publisher's
// goroutine in registration order.
type Handler func(hubproto.Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a race-free listener registry.  The zero value is not usable; use
// [New].
type Bus struct {
	log *slog.Logger

	mu        sync.Mutex
	nextID    uint64
	listeners map[hubproto.EventName][]subscription
}

// New creates an empty Bus logging handler failures through logger.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		log:       logger,
		listeners: make(map[hubproto.EventName][]subscription),
	}
}

// Subscribe registers h for events named name and returns a cancel function
// that removes the registration.  Cancel is idempotent and safe to call
// while a publish of the same event is in flight: once cancelled, the
// handler is never invoked again, including later in that same dispatch.
func (b *Bus) Subscribe(name hubproto.EventName, h Handler) func() {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(name, id) })
	}
}

func (b *Bus) unsubscribe(name hubproto.EventName, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.listeners[name]
	for i, sub := range subs {
		if sub.id == id {
			b.listeners[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.listeners[name]) == 0 {
		delete(b.listeners, name)
	}
}

// Publish delivers ev to every handler registered for its event name at the
// moment of the call.  Each handler runs in isolation: a panicking handler
// is caught and logged and does not stop the remaining handlers, nor does it
// surface to the publisher.
func (b *Bus) Publish(ev hubproto.Event) {
	if ev == nil {
		return
	}
	name := ev.Name()

	b.mu.Lock()
	ids := make([]uint64, len(b.listeners[name]))
	for i, sub := range b.listeners[name] {
		ids[i] = sub.id
	}
	b.mu.Unlock()

	for _, id := range ids {
		// Re-check registration per handler so an unsubscribe issued during
		// this dispatch (by an earlier handler) is honored.
		b.mu.Lock()
		var h Handler
		for _, sub := range b.listeners[name] {
			if sub.id == id {
				h = sub.handler
				break
			}
		}
		b.mu.Unlock()
		if h == nil {
			continue
		}
		b.invoke(name, h, ev)
	}
}

func (b *Bus) invoke(name hubproto.EventName, h Handler, ev hubproto.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event", string(name), "panic", r)
		}
	}()
	h(ev)
}
