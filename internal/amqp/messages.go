package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"caisse/internal/events"
)

// ChangeMessage is published after every successful cash entry write. It
// carries identifiers only; consumers re-read the data they need.
type ChangeMessage struct {
	Op        events.Op `json:"op"`
	ID        string    `json:"id"`
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage builds the message for a change.
func NewChangeMessage(c events.Change) *ChangeMessage {
	ts := c.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ChangeMessage{Op: c.Op, ID: c.ID, Date: c.Date, Timestamp: ts}
}

// Change converts the message back into an events.Change.
func (m *ChangeMessage) Change() events.Change {
	return events.Change{Op: m.Op, ID: m.ID, Date: m.Date, At: m.Timestamp}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes and checks a message.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Op {
	case events.OpCreated, events.OpUpdated, events.OpDeleted:
	default:
		return nil, fmt.Errorf("unknown change op %q", msg.Op)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("change message without id")
	}
	return &msg, nil
}
