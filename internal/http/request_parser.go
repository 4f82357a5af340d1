// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"net/http"
	"net/url"
	"strings"

	"expensedash/internal/core"
)

// Credentials are the fields of the login and register forms.
type Credentials struct {
	Name     string
	Email    string
	Password string
}

// ParseDraft reads the expense form fields. Values are trimmed and stripped of
// control characters but otherwise kept as typed; validation happens on submit.
func ParseDraft(form url.Values) core.Draft {
	return core.Draft{
		Title:    sanitizeInput(form.Get("title")),
		Amount:   sanitizeInput(form.Get("amount")),
		Category: sanitizeInput(form.Get("category")),
		Date:     sanitizeInput(form.Get("date")),
	}
}

// ParseCredentials reads the auth form fields. Passwords are not trimmed.
func ParseCredentials(form url.Values) Credentials {
	return Credentials{
		Name:     sanitizeInput(form.Get("name")),
		Email:    sanitizeInput(form.Get("email")),
		Password: form.Get("password"),
	}
}

// Valid reports whether the fields needed for login (and register when
// needName is set) are present.
func (c Credentials) Valid(needName bool) bool {
	if c.Email == "" || c.Password == "" {
		return false
	}
	return !needName || c.Name != ""
}

// Confirmed reports whether the browser's confirmation dialog was accepted.
// hx-confirm only sends the request after the user agrees; the button also
// posts confirmed=true so a bare DELETE is treated as declined.
func Confirmed(r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("HX-Prompt"), "yes") {
		return true
	}
	v := r.FormValue("confirmed")
	if v == "" {
		v = r.URL.Query().Get("confirmed")
	}
	return v == "true" || v == "1"
}

// ParseFormOrFail parses the request form and returns an error response on failure.
// Returns nil on success.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	if err := r.ParseForm(); err != nil {
		return BadRequestError("Invalid request format")
	}
	return nil
}
