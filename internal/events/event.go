// Package events publishes expense change notifications for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Action names the mutation that happened.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Event is published after a mutation succeeded against the expense API.
type Event struct {
	Action    Action    `json:"action"`
	ExpenseID string    `json:"expense_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New stamps an event with the current time.
func New(action Action, expenseID, userID string) Event {
	return Event{
		Action:    action,
		ExpenseID: expenseID,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey is the direct-exchange key consumers bind to.
func (e Event) RoutingKey() string {
	return "expense." + string(e.Action)
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes an event body.
func FromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
