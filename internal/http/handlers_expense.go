package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expensedash/internal/dashboard"
	applog "expensedash/internal/log"
	"expensedash/internal/session"
)

const (
	msgNotFound       = "Expense not found"
	msgExportFailed   = "Failed to export expenses"
	msgNothingToShare = "No expenses to export"
)

const exportTimeout = 30 * time.Second

// handleSubmitExpense stores the form as the draft and submits it. The form
// partial comes back either reset or still holding the rejected input.
func (s *Server) handleSubmitExpense(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	dash := dashboardFrom(r.Context())
	dash.SetDraft(ParseDraft(r.PostForm))

	err := dash.Submit(r.Context())
	s.afterMutation(w, r, "expense_form", err)
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dash := dashboardFrom(r.Context())
	if !dash.StartEditByID(id) {
		s.renderPartial(w, r, "expense_form", func(b *HTMXResponseBuilder) {
			b.TriggerErrorNotification(msgNotFound)
		})
		return
	}
	s.renderPartial(w, r, "expense_form", nil)
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	dashboardFrom(r.Context()).CancelEdit()
	s.renderPartial(w, r, "expense_form", nil)
}

// handleDeleteExpense removes a record once the browser confirmed it.
// A declined confirmation answers 204 and changes nothing.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dash := dashboardFrom(r.Context())

	err := dash.Remove(r.Context(), id, func(string) bool { return Confirmed(r) })
	if errors.Is(err, dashboard.ErrNotConfirmed) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.afterMutation(w, r, "", err)
}

// afterMutation answers a submit or delete. Success announces the change;
// a session that lost its authentication is sent to the login page.
func (s *Server) afterMutation(w http.ResponseWriter, r *http.Request, partial string, err error) {
	sess := sessionFrom(r.Context())
	if errors.Is(err, dashboard.ErrClosed) || sess.Phase() != session.Authenticated {
		NewHTMXResponse().
			Toasts(sess.Toasts().Drain()).
			Redirect("/login").
			Write(w)
		return
	}
	if err != nil {
		requestLogger(r.Context()).DebugContext(r.Context(), "Mutation failed", applog.FieldError, err)
	}

	decorate := func(b *HTMXResponseBuilder) {
		if err == nil {
			b.TriggerExpensesChanged()
		}
	}
	if partial != "" {
		s.renderPartial(w, r, partial, decorate)
		return
	}
	b := NewHTMXResponse()
	decorate(b)
	b.Toasts(sess.Toasts().Drain()).Write(w)
}

// handleExport copies the cached list to the configured spreadsheet.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		NotFoundError("Export is not configured").Write(w)
		return
	}
	sess := sessionFrom(r.Context())
	records := loadedView(r.Context(), dashboardFrom(r.Context())).Records

	ctx, cancel := withTimeout(r.Context(), exportTimeout)
	defer cancel()

	b := NewHTMXResponse().Toasts(sess.Toasts().Drain())
	n, err := s.exporter.Export(ctx, records)
	switch {
	case err != nil:
		requestLogger(r.Context()).ErrorContext(r.Context(), "Export failed",
			applog.FieldComponent, applog.ComponentExport,
			applog.FieldOperation, applog.OpExport,
			applog.FieldUserID, sess.User().ID,
			applog.FieldError, err)
		b.TriggerErrorNotification(msgExportFailed)
	case n == 0:
		b.TriggerNotification(NotificationInfo, msgNothingToShare, 3000)
	default:
		b.TriggerSuccessNotification(fmt.Sprintf("Exported %d expenses to Google Sheets", n))
	}
	b.Write(w)
}
