package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"expensedash/internal/core"
	"expensedash/internal/dashboard"
	applog "expensedash/internal/log"
)

type contextKey string

const (
	sessionContextKey   contextKey = "session"
	dashboardContextKey contextKey = "dashboard"
)

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends htmx requests an HX-Redirect and plain requests a 303.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// requestLogger returns the request-scoped logger set by the trace middleware.
func requestLogger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx)
}

// displayDate renders an API date as "Jan 2, 2006", or the raw value when unparseable.
func displayDate(raw string) string {
	t, ok := core.ParseDate(raw)
	if !ok {
		return raw
	}
	return t.Format("Jan 2, 2006")
}

// withTimeout bounds work started by a handler.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// dashboardFrom returns the manager RequireAuth resolved for this request.
// If the session is reset meanwhile the manager is closed and reports ErrClosed.
func dashboardFrom(ctx context.Context) *dashboard.Manager {
	dash, _ := ctx.Value(dashboardContextKey).(*dashboard.Manager)
	return dash
}
