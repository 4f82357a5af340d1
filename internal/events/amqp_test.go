package events

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"unexpected EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"amqp closed", fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{"access refused", errors.New("Exception (403) Reason: ACCESS_REFUSED"), false},
		{"other error", errors.New("some other error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	e := New(ActionDeleted, "e1", "u1")
	if e.RoutingKey() != "expense.deleted" {
		t.Errorf("RoutingKey() = %s", e.RoutingKey())
	}
	body, err := e.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `"action":"deleted"`) || !strings.Contains(string(body), `"expense_id":"e1"`) {
		t.Errorf("unexpected body %s", body)
	}
	back, err := FromJSON(body)
	if err != nil {
		t.Fatal(err)
	}
	if back.Action != e.Action || back.ExpenseID != e.ExpenseID || !back.Timestamp.Equal(e.Timestamp) {
		t.Errorf("FromJSON() = %+v, want %+v", back, e)
	}
}
