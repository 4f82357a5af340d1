package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"expensedash/internal/cache"
	"expensedash/internal/config"
	"expensedash/internal/export"
	applog "expensedash/internal/log"
	"expensedash/internal/middleware/ratelimit"
	"expensedash/internal/middleware/security"
	"expensedash/internal/middleware/trace"
	"expensedash/internal/session"
	appweb "expensedash/web"
)

// Chart cache sizing. Entries are keyed by session and chart data, so a
// changed list never serves a stale image.
const (
	chartCacheSize = 256
	chartCacheTTL  = 10 * time.Minute
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options wires the server to the rest of the application.
type Options struct {
	Config    *config.Config
	Sessions  *session.Service
	Exporter  export.Exporter // nil disables /export/sheets
	Readiness []ReadinessCheck
	Logger    *applog.Logger
}

// Server is the dashboard's HTTP front end.
type Server struct {
	http.Server

	cfg       *config.Config
	sessions  *session.Service
	exporter  export.Exporter
	readiness []ReadinessCheck
	templates *template.Template
	logger    *applog.Logger
	started   time.Time

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	charts   *cache.LRUCache[[]byte]
}

// NewServer parses the embedded templates and builds the router.
func NewServer(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	t, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	detector := security.NewDetector()
	s := &Server{
		cfg:       opts.Config,
		sessions:  opts.Sessions,
		exporter:  opts.Exporter,
		readiness: opts.Readiness,
		templates: t,
		logger:    opts.Logger.WithComponent(applog.ComponentHTTP),
		started:   time.Now(),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.Config.RateLimitPerMinute}),
		detector:  detector,
		tracer:    trace.NewMiddleware(opts.Logger, detector.ExtractClientIP),
		charts:    cache.NewLRUCache[[]byte](chartCacheSize, chartCacheTTL),
	}

	router, err := s.routes()
	if err != nil {
		return nil, err
	}
	s.Server = http.Server{
		Addr:              ":" + opts.Config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware(s.logger))
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited, http.MethodPost, http.MethodDelete))

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.loadSession)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		})
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.RedirectIfLoggedIn)
			r.Get("/login", s.handleLoginPage)
			r.Post("/login", s.handleLogin)
			r.Get("/register", s.handleRegisterPage)
			r.Post("/register", s.handleRegister)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Get("/dashboard", s.handleDashboard)

			r.Get("/ui/summary", s.handleSummary)
			r.Get("/ui/form", s.handleForm)
			r.Get("/ui/transactions", s.handleTransactions)
			r.Get("/ui/charts/category.svg", s.handleCategoryChart)
			r.Get("/ui/charts/monthly.svg", s.handleMonthlyChart)

			r.Post("/expenses", s.handleSubmitExpense)
			r.Post("/expenses/cancel", s.handleCancelEdit)
			r.Get("/expenses/{id}/edit", s.handleEditExpense)
			r.Delete("/expenses/{id}", s.handleDeleteExpense)

			r.Post("/export/sheets", s.handleExport)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Page not found").Write(w)
	})
	return r, nil
}

// Limiter exposes the rate limiter so its cleanup loop can be run alongside the server.
func (s *Server) Limiter() *ratelimit.Limiter {
	return s.limiter
}

// ChartCache exposes the rendered chart cache for periodic expiry sweeps.
func (s *Server) ChartCache() *cache.LRUCache[[]byte] {
	return s.charts
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "60").
		TriggerErrorNotification("Too many requests. Please try again in a minute.").
		BodyHTML([]byte(`<div class="error">Rate limit exceeded. Please try again later.</div>`)).
		Write(w)
}

// loadSession attaches the caller's session, if any, to the request context.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := session.IDFromRequest(r)
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		sess, ok := s.sessions.Store().Get(r.Context(), id)
		if !ok {
			session.ClearCookie(w, s.cfg.CookieSecure)
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		ctx = applog.NewContext(ctx, requestLogger(ctx).With(applog.FieldSessionID, sess.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session attached by loadSession.
func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey).(*session.Session)
	return sess
}

// adoptSession makes a freshly authenticated session the browser's own. The
// session the request arrived with is dropped, so an ID handed out before
// authentication never becomes authenticated.
func (s *Server) adoptSession(w http.ResponseWriter, r *http.Request, fresh *session.Session) {
	if prev := sessionFrom(r.Context()); prev != nil && prev.ID != fresh.ID {
		s.sessions.Store().Remove(r.Context(), prev.ID)
	}
	session.SetCookie(w, fresh.ID, s.cfg.SessionTTL, s.cfg.CookieSecure)
}
