package events

import "creditpool/core/types"

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. journal, metrics).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until they are flushed. Operations that may still be
// rolled back emit into a Buffer and flush only once committed.
type Buffer struct {
	pending []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.pending = append(b.pending, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush forwards buffered events to the target and clears the buffer.
func (b *Buffer) Flush(target Emitter) {
	if target != nil {
		for _, evt := range b.pending {
			target.Emit(evt)
		}
	}
	b.pending = nil
}

// Reset drops buffered events.
func (b *Buffer) Reset() { b.pending = nil }

// Fanout forwards every event to each configured emitter.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
