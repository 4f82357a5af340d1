// Package http serves the dashboard pages, HTMX partials and chart images.
//
// This file implements the Builder Pattern for constructing HTMX responses.
// Triggers are collected into a single HX-Trigger header; toasts share one
// show-notification event so several can travel in one response.

package http

import (
	"encoding/json"
	"html/template"
	"net/http"

	"expensedash/internal/notify"
)

// EventExpensesChanged tells every list-derived partial to reload.
const EventExpensesChanged = "expenses:changed"

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// Notification is one toast as the browser receives it.
type Notification struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration"`
}

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
type HTMXResponseBuilder struct {
	triggers      map[string]interface{}
	notifications []Notification
	statusCode    int
	body          []byte
	headers       map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]interface{}),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data interface{}) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerExpensesChanged asks the summary, list and charts to refresh.
func (b *HTMXResponseBuilder) TriggerExpensesChanged() *HTMXResponseBuilder {
	return b.Trigger(EventExpensesChanged, struct{}{})
}

// TriggerNotification queues a toast for the show-notification event.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	b.notifications = append(b.notifications, Notification{
		Type:     notifType,
		Message:  message,
		Duration: durationMs,
	})
	return b
}

// TriggerSuccessNotification is a convenience method for success notifications.
func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// TriggerErrorNotification is a convenience method for error notifications.
func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

// Toasts converts drained session toasts into notifications, keeping their order.
func (b *HTMXResponseBuilder) Toasts(toasts []notify.Toast) *HTMXResponseBuilder {
	for _, t := range toasts {
		if t.Kind == notify.KindError {
			b.TriggerErrorNotification(t.Message)
		} else {
			b.TriggerSuccessNotification(t.Message)
		}
	}
	return b
}

// Redirect makes htmx perform a full client-side navigation to url.
func (b *HTMXResponseBuilder) Redirect(url string) *HTMXResponseBuilder {
	return b.Header("HX-Redirect", url)
}

// Header adds a custom header to the response.
func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the response body as bytes.
func (b *HTMXResponseBuilder) Body(content []byte) *HTMXResponseBuilder {
	b.body = content
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html []byte) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = html
	return b
}

// TriggerHeader returns the HX-Trigger value, or "" when nothing was triggered.
func (b *HTMXResponseBuilder) TriggerHeader() string {
	if len(b.triggers) == 0 && len(b.notifications) == 0 {
		return ""
	}
	all := make(map[string]interface{}, len(b.triggers)+1)
	for k, v := range b.triggers {
		all[k] = v
	}
	if len(b.notifications) > 0 {
		all["show-notification"] = map[string]interface{}{"toasts": b.notifications}
	}
	triggerJSON, err := json.Marshal(all)
	if err != nil {
		return ""
	}
	return string(triggerJSON)
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if trigger := b.TriggerHeader(); trigger != "" {
		w.Header().Set("HX-Trigger", trigger)
	}

	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates a standard error response with HTML formatting.
// The message is HTML-escaped for safety.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	escapedMsg := template.HTMLEscapeString(message)
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML([]byte(`<div class="error">` + escapedMsg + `</div>`))
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}
