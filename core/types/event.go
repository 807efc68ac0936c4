package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent returns an event of the supplied type with an empty attribute set.
func NewEvent(eventType string) *Event {
	return &Event{Type: eventType, Attributes: make(map[string]string)}
}

// Set records an attribute and returns the event for chaining.
func (e *Event) Set(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// Attr returns the attribute value or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
