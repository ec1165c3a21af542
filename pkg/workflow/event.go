package workflow

// Well-known event type tags. A run begins with a start event and resolves
// when the terminal step emits a stop event.
const (
	// EventTypeStart is the type tag of the event fed to the first step.
	EventTypeStart = "start"

	// EventTypeStop is the type tag of the event emitted by the terminal step.
	EventTypeStop = "stop"
)

// Event is the unit of data flowing between steps. The Type tag is an
// explicit discriminant set at creation; filtering compares it by value and
// never inspects the payload.
type Event struct {
	// Type is the event's type tag (e.g., "start", "tagline_generated", "stop").
	Type string `json:"type"`

	// Data is the event payload.
	Data map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the given type tag and payload.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{Type: eventType, Data: data}
}

// StartEvent creates the event that begins a run, carrying the run inputs.
func StartEvent(inputs map[string]any) Event {
	return NewEvent(EventTypeStart, inputs)
}

// StopEvent creates the event that ends a run, carrying the final result.
func StopEvent(result map[string]any) Event {
	return NewEvent(EventTypeStop, result)
}

// IsStop reports whether this is a stop event.
func (e Event) IsStop() bool {
	return e.Type == EventTypeStop
}

// Get retrieves a payload value by key.
func (e Event) Get(key string) (any, bool) {
	v, ok := e.Data[key]
	return v, ok
}

// GetString retrieves a string payload value by key.
// Returns "" and false if the key is missing or not a string.
func (e Event) GetString(key string) (string, bool) {
	v, ok := e.Data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a copy of the event with its own top-level payload map.
// Nested values are shared; steps treat event payloads as read-only.
func (e Event) Clone() Event {
	if e.Data == nil {
		return Event{Type: e.Type}
	}
	data := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		data[k] = v
	}
	return Event{Type: e.Type, Data: data}
}
