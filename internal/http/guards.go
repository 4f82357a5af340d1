package http

import (
	"context"
	"net/http"

	applog "expensedash/internal/log"
	"expensedash/internal/session"
)

// RequireAuth lets Authenticated sessions through. A Verifying session is
// confirmed with the API first; anything else is sent to the login page.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r.Context())
		if sess == nil {
			redirect(w, r, "/login")
			return
		}

		if sess.Phase() == session.Verifying {
			if err := s.sessions.Verify(r.Context(), sess); err != nil {
				requestLogger(r.Context()).DebugContext(r.Context(), "Verification failed, redirecting to login",
					applog.FieldError, err)
			}
		}

		dash := sess.Dashboard()
		if sess.Phase() != session.Authenticated || dash == nil {
			redirect(w, r, "/login")
			return
		}
		// The server-side TTL slides with activity; keep the cookie in step.
		session.SetCookie(w, sess.ID, s.cfg.SessionTTL, s.cfg.CookieSecure)
		ctx := context.WithValue(r.Context(), dashboardContextKey, dash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RedirectIfLoggedIn sends sessions holding a token to the dashboard.
func (s *Server) RedirectIfLoggedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := sessionFrom(r.Context()); sess != nil && sess.HasToken() {
			redirect(w, r, "/dashboard")
			return
		}
		next.ServeHTTP(w, r)
	})
}
