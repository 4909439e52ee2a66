// Package memory contains an in-memory notifier for tests.
package memory

import (
	"context"
	"sync"
)

// Event captures one Emit call.
type Event struct {
	Topic   string
	Event   string
	Payload any
}

// Notifier records emitted events for inspection.
type Notifier struct {
	mu     sync.RWMutex
	events []Event
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Emit records the event.
func (n *Notifier) Emit(_ context.Context, topic, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Topic: topic, Event: event, Payload: payload})
	return nil
}

// Events returns the recorded emits.
func (n *Notifier) Events() []Event {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}
