package http

import (
	"context"
	"net/http"
	"strings"

	"expensedash/internal/chart"
	"expensedash/internal/core"
	"expensedash/internal/dashboard"
	applog "expensedash/internal/log"
	"expensedash/internal/notify"
	"expensedash/internal/session"
)

// dashboardPage is the data shared by the dashboard page and its partials.
type dashboardPage struct {
	User          core.User
	View          dashboard.View
	Toasts        []notify.Toast
	ConfirmPrompt string
	ExportEnabled bool
}

// loadedView returns the dashboard state, fetching the list first when it
// has never been loaded in this session.
func loadedView(ctx context.Context, dash *dashboard.Manager) dashboard.View {
	if v := dash.View(); v.Loaded {
		return v
	}
	_ = dash.Load(ctx)
	return dash.View()
}

func (s *Server) pageData(sess *session.Session, view dashboard.View) dashboardPage {
	return dashboardPage{
		User:          sess.User(),
		View:          view,
		ConfirmPrompt: dashboard.ConfirmDeletePrompt,
		ExportEnabled: s.exporter != nil,
	}
}

// handleDashboard renders the full page. Pending toasts are rendered inline.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	dash := dashboardFrom(r.Context())

	data := s.pageData(sess, loadedView(r.Context(), dash))
	data.Toasts = sess.Toasts().Drain()

	body, err := renderTemplate(s.templates, "dashboard_page", data)
	if err != nil {
		s.internalError(w, r, "render dashboard", err)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.renderPartial(w, r, "summary_cards", nil)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	s.renderPartial(w, r, "expense_form", nil)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	s.renderPartial(w, r, "recent_transactions", nil)
}

// renderPartial renders one dashboard fragment and carries pending toasts in
// HX-Trigger. decorate may add triggers before the response is written.
func (s *Server) renderPartial(w http.ResponseWriter, r *http.Request, name string, decorate func(*HTMXResponseBuilder)) {
	sess := sessionFrom(r.Context())
	dash := dashboardFrom(r.Context())

	body, err := renderTemplate(s.templates, name, s.pageData(sess, loadedView(r.Context(), dash)))
	if err != nil {
		s.internalError(w, r, "render "+name, err)
		return
	}

	b := NewHTMXResponse().BodyHTML(body)
	if decorate != nil {
		decorate(b)
	}
	b.Toasts(sess.Toasts().Drain()).Write(w)
}

func (s *Server) handleCategoryChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "category", func(sum core.Summary) (string, func() ([]byte, error)) {
		return categoryKey(sum.ByCategory), func() ([]byte, error) { return chart.CategoryPie(sum.ByCategory) }
	})
}

func (s *Server) handleMonthlyChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "monthly", func(sum core.Summary) (string, func() ([]byte, error)) {
		return monthKey(sum.ByMonth), func() ([]byte, error) { return chart.MonthlyBar(sum.ByMonth) }
	})
}

// serveChart renders an SVG from the session's aggregates, reusing the last
// rendering while the underlying totals are unchanged.
func (s *Server) serveChart(w http.ResponseWriter, r *http.Request, kind string, build func(core.Summary) (string, func() ([]byte, error))) {
	sess := sessionFrom(r.Context())
	view := loadedView(r.Context(), dashboardFrom(r.Context()))
	fingerprint, render := build(view.Summary)
	key := sess.ID + ":" + kind + ":" + fingerprint

	svg, ok := s.charts.Get(key)
	if !ok {
		var err error
		svg, err = render()
		if err != nil {
			requestLogger(r.Context()).ErrorContext(r.Context(), "Chart render failed",
				applog.FieldComponent, applog.ComponentChart,
				applog.FieldOperation, applog.OpRender,
				"chart", kind,
				applog.FieldError, err)
			http.Error(w, "chart unavailable", http.StatusInternalServerError)
			return
		}
		s.charts.Set(key, svg)
	}

	w.Header().Set("Content-Type", chart.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(svg)
}

func categoryKey(totals []core.CategoryTotal) string {
	var b strings.Builder
	for _, t := range totals {
		b.WriteString(t.Name)
		b.WriteByte('=')
		b.WriteString(t.Value.String())
		b.WriteByte(';')
	}
	return b.String()
}

func monthKey(totals []core.MonthTotal) string {
	var b strings.Builder
	for _, t := range totals {
		b.WriteString(t.Month)
		b.WriteByte('=')
		b.WriteString(t.Amount.String())
		b.WriteByte(';')
	}
	return b.String()
}
