package bus

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	EventTurnStarted     EventType = "turn.started"
	EventSessionSnapshot EventType = "session.snapshot"
	EventSessionSettled  EventType = "session.settled"
	EventTurnCompleted   EventType = "turn.completed"
)

// Event represents a bus event.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`

	ack chan struct{} // set on Flush markers only
}

// NewEvent creates a new event with data encoded as JSON.
func NewEvent(eventType EventType, source string, data any) (*Event, error) {
	var dataBytes json.RawMessage
	if data != nil {
		var err error
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}

	return &Event{
		ID:        generateEventID(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Data:      dataBytes,
	}, nil
}

// ParseData unmarshals the event data into the given struct.
func (e *Event) ParseData(v any) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// TurnStartedData is carried by EventTurnStarted.
type TurnStartedData struct {
	TurnID   string `json:"turnId"`
	Text     string `json:"text"`
	Sessions []int  `json:"sessions"` // slots taking part
}

// SessionSettledData is carried by EventSessionSettled.
type SessionSettledData struct {
	TurnID    string `json:"turnId"`
	SessionID string `json:"sessionId"`
	Slot      int    `json:"slot"`
	State     string `json:"state"`
	Fragments int    `json:"fragments"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// TurnCompletedData is carried by EventTurnCompleted.
type TurnCompletedData struct {
	TurnID    string `json:"turnId"`
	Failed    int    `json:"failed"`
	Succeeded int    `json:"succeeded"`
}

var eventCounter atomic.Int64

func generateEventID() string {
	n := eventCounter.Add(1)
	return fmt.Sprintf("evt-%d-%d", time.Now().UnixMilli(), n)
}
