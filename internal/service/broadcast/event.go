package broadcast

import (
	"encoding/json"
	"time"
)

// Event is the outbound envelope written to clients.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// NewEvent stamps an event with the current time in unix milliseconds.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data, Timestamp: time.Now().UnixMilli()}
}

// Encode renders the event as a text frame.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
