package testfixtures

import (
	"sync"

	"clubhouse-backend/internal/notification"
)

// Emitter records emitted notification events.
type Emitter struct {
	mu     sync.Mutex
	events []notification.Event
}

// Emit implements the engines' emitter dependency.
func (e *Emitter) Emit(ev notification.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (e *Emitter) Events() []notification.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notification.Event(nil), e.events...)
}

// OfKind returns the emitted events of kind k.
func (e *Emitter) OfKind(k notification.Kind) []notification.Event {
	var out []notification.Event
	for _, ev := range e.Events() {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}
