package http

import (
	"errors"
	"net/http"

	"expensedash/internal/apiclient"
	applog "expensedash/internal/log"
	"expensedash/internal/session"
)

const (
	msgMissingFields    = "Please fill in all required fields."
	msgBadCredentials   = "Invalid email or password."
	msgRegisterRejected = "Registration failed. Please check your details."
	msgServiceDown      = "The expense service is unavailable. Please try again."
)

// authPage is the data for the login and register templates.
type authPage struct {
	Title string
	Error string
	Form  Credentials
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderAuthPage(w, r, "login_page", http.StatusOK, authPage{Title: "Sign in"})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.renderAuthPage(w, r, "register_page", http.StatusOK, authPage{Title: "Create account"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	creds := ParseCredentials(r.PostForm)
	page := authPage{Title: "Sign in", Form: Credentials{Email: creds.Email}}
	if !creds.Valid(false) {
		page.Error = msgMissingFields
		s.renderAuthPage(w, r, "login_page", http.StatusUnprocessableEntity, page)
		return
	}

	sess, err := s.sessions.Store().Create()
	if err != nil {
		s.internalError(w, r, "create session", err)
		return
	}
	if err := s.sessions.Login(r.Context(), sess, creds.Email, creds.Password); err != nil {
		s.sessions.Store().Remove(r.Context(), sess.ID)
		status, msg := authFailure(err, msgBadCredentials)
		page.Error = msg
		s.renderAuthPage(w, r, "login_page", status, page)
		return
	}
	s.adoptSession(w, r, sess)
	redirect(w, r, "/dashboard")
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	creds := ParseCredentials(r.PostForm)
	page := authPage{Title: "Create account", Form: Credentials{Name: creds.Name, Email: creds.Email}}
	if !creds.Valid(true) {
		page.Error = msgMissingFields
		s.renderAuthPage(w, r, "register_page", http.StatusUnprocessableEntity, page)
		return
	}

	sess, err := s.sessions.Store().Create()
	if err != nil {
		s.internalError(w, r, "create session", err)
		return
	}
	if err := s.sessions.Register(r.Context(), sess, creds.Name, creds.Email, creds.Password); err != nil {
		s.sessions.Store().Remove(r.Context(), sess.ID)
		status, msg := authFailure(err, msgRegisterRejected)
		page.Error = msg
		s.renderAuthPage(w, r, "register_page", status, page)
		return
	}
	s.adoptSession(w, r, sess)
	redirect(w, r, "/dashboard")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := sessionFrom(r.Context()); sess != nil {
		s.sessions.Logout(r.Context(), sess)
		s.sessions.Store().Remove(r.Context(), sess.ID)
	}
	session.ClearCookie(w, s.cfg.CookieSecure)
	redirect(w, r, "/login")
}

// authFailure maps a login or register error to a status and a message safe
// to show. API validation messages (4xx) are passed through.
func authFailure(err error, rejected string) (int, string) {
	if errors.Is(err, session.ErrInvalidCredentials) {
		return http.StatusUnauthorized, rejected
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) && se.Status >= 400 && se.Status < 500 {
		if se.Message != "" {
			return http.StatusUnprocessableEntity, se.Message
		}
		return http.StatusUnprocessableEntity, rejected
	}
	return http.StatusBadGateway, msgServiceDown
}

func (s *Server) renderAuthPage(w http.ResponseWriter, r *http.Request, name string, status int, page authPage) {
	body, err := renderTemplate(s.templates, name, page)
	if err != nil {
		s.internalError(w, r, "render "+name, err)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(body).Write(w)
}

// internalError logs err and answers with a generic message.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	requestLogger(r.Context()).ErrorContext(r.Context(), "Request failed",
		applog.FieldOperation, op,
		applog.FieldError, err)
	InternalServerError("Something went wrong. Please try again.").Write(w)
}
