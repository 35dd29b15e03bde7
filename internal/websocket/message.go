package websocket

import (
	"encoding/json"
	"time"
)

// Event types broadcast to dashboard clients.
const (
	EventAlertTriggered    = "alert_triggered"
	EventAlertAcknowledged = "alert_acknowledged"
	EventAlertResolved     = "alert_resolved"
	EventAlertEscalated    = "alert_escalated"
)

// Message is the envelope broadcast over the WebSocket connection.
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(eventType string, data interface{}) Message {
	return Message{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// ToJSON serializes the message, falling back to an empty object on error.
func (m Message) ToJSON() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return data
}
