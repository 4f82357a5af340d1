package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"expensedash/internal/notify"
)

func TestHTMXResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		Status(http.StatusCreated).
		Body([]byte("test")).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if w.Body.String() != "test" {
		t.Errorf("Body = %q, want %q", w.Body.String(), "test")
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger should be absent without triggers")
	}
}

func TestHTMXResponseBuilder_ExpensesChangedWithToasts(t *testing.T) {
	w := httptest.NewRecorder()

	NewHTMXResponse().
		TriggerExpensesChanged().
		Toasts([]notify.Toast{
			{Kind: notify.KindSuccess, Message: "Expense added successfully"},
			{Kind: notify.KindError, Message: "Failed to load expenses"},
		}).
		Write(w)

	var trigger struct {
		Changed      *struct{} `json:"expenses:changed"`
		Notification struct {
			Toasts []Notification `json:"toasts"`
		} `json:"show-notification"`
	}
	if err := json.Unmarshal([]byte(w.Header().Get("HX-Trigger")), &trigger); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	if trigger.Changed == nil {
		t.Error("missing expenses:changed")
	}
	toasts := trigger.Notification.Toasts
	if len(toasts) != 2 {
		t.Fatalf("got %d toasts, want 2", len(toasts))
	}
	if toasts[0].Type != NotificationSuccess || toasts[0].Duration != 3000 {
		t.Errorf("first toast = %+v", toasts[0])
	}
	if toasts[1].Type != NotificationError || toasts[1].Message != "Failed to load expenses" || toasts[1].Duration != 5000 {
		t.Errorf("second toast = %+v", toasts[1])
	}
}

func TestHTMXResponseBuilder_Redirect(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().Redirect("/login").Write(w)

	if got := w.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q, want /login", got)
	}
}

func TestHTMXResponseBuilder_BodyHTML(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTMXResponse().BodyHTML([]byte("<p>hi</p>")).Write(w)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *HTMXResponseBuilder
		code    int
	}{
		{"bad request", BadRequestError("<bad>"), http.StatusBadRequest},
		{"not found", NotFoundError("missing"), http.StatusNotFound},
		{"internal", InternalServerError("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d", w.Code, tt.code)
			}
			if strings.Contains(w.Body.String(), "<bad>") {
				t.Error("message should be escaped")
			}
		})
	}
}
