package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expensedash/internal/apiclient"
	"expensedash/internal/core"
	"expensedash/internal/dashboard"
	"expensedash/internal/events"
	applog "expensedash/internal/log"
)

var (
	// ErrTokenExpired is returned by Verify when the token's exp claim has passed.
	ErrTokenExpired = errors.New("session token expired")
	// ErrInvalidCredentials is returned by Login and Register when the API refuses them.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service performs the authentication operations on sessions.
type Service struct {
	store     *Store
	publisher events.Publisher
	logger    *applog.Logger
	now       func() time.Time
}

func NewService(store *Store, publisher events.Publisher, logger *applog.Logger) *Service {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(applog.ComponentSession),
		now:       time.Now,
	}
}

// Store returns the session store the service works on.
func (s *Service) Store() *Store {
	return s.store
}

// Login authenticates sess with email and password.
func (s *Service) Login(ctx context.Context, sess *Session, email, password string) error {
	res, err := sess.apiClient().Login(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return s.authFailed(ctx, sess, applog.OpLogin, err)
	}
	s.authenticate(ctx, sess, res)
	s.logger.InfoContext(ctx, "User logged in", applog.FieldSessionID, sess.ID, applog.FieldUserID, res.User.ID)
	return nil
}

// Register creates an account and authenticates sess with it.
func (s *Service) Register(ctx context.Context, sess *Session, name, email, password string) error {
	res, err := sess.apiClient().Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password)
	if err != nil {
		return s.authFailed(ctx, sess, applog.OpRegister, err)
	}
	s.authenticate(ctx, sess, res)
	s.logger.InfoContext(ctx, "User registered", applog.FieldSessionID, sess.ID, applog.FieldUserID, res.User.ID)
	return nil
}

// Verify confirms a Verifying session's token with the API. Sessions in any
// other phase are left alone. Any failure leaves the session Unauthenticated.
func (s *Service) Verify(ctx context.Context, sess *Session) error {
	sess.verifyMu.Lock()
	defer sess.verifyMu.Unlock()

	if sess.Phase() != Verifying {
		return nil
	}

	token := sess.Token()
	if expired(token, s.now()) {
		s.logger.InfoContext(ctx, "Session token expired", applog.FieldSessionID, sess.ID)
		s.reset(ctx, sess)
		return ErrTokenExpired
	}

	client := sess.apiClient()
	user, err := client.Me(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Session verification failed",
			applog.FieldSessionID, sess.ID,
			applog.FieldErrorType, string(apiclient.Classify(err)),
			applog.FieldError, err)
		s.reset(ctx, sess)
		return fmt.Errorf("verify session: %w", err)
	}

	s.authenticate(ctx, sess, apiclient.AuthResult{Token: token, User: user})
	s.logger.InfoContext(ctx, "Session verified", applog.FieldSessionID, sess.ID, applog.FieldUserID, user.ID)
	return nil
}

// Logout forgets the token and closes the session's dashboard.
func (s *Service) Logout(ctx context.Context, sess *Session) {
	s.logger.InfoContext(ctx, "User logged out", applog.FieldSessionID, sess.ID, applog.FieldUserID, sess.User().ID)
	s.reset(ctx, sess)
}

// Expire drops an authenticated session back to Unauthenticated after the API
// rejected its token mid-use.
func (s *Service) Expire(ctx context.Context, sess *Session) {
	if sess.Phase() == Unauthenticated {
		return
	}
	s.logger.WarnContext(ctx, "Session token rejected by API", applog.FieldSessionID, sess.ID)
	s.reset(ctx, sess)
}

func (s *Service) authenticate(ctx context.Context, sess *Session, res apiclient.AuthResult) {
	sess.mu.Lock()
	old := sess.dash
	if sess.client.Token() != res.Token {
		sess.client = sess.client.WithToken(res.Token)
	}
	sess.token = res.Token
	sess.user = res.User
	sess.phase = Authenticated
	sess.dash = dashboard.New(dashboard.Options{
		API:       sess.client,
		Notifier:  sess.toasts,
		Publisher: s.publisher,
		UserID:    res.User.ID,
		Logger:    s.logger,
		OnAuthFailure: func() {
			s.Expire(context.Background(), sess)
		},
	})
	sess.mu.Unlock()

	if old != nil {
		old.Close()
	}
	s.store.persist(ctx, sess)
}

func (s *Service) reset(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	dash := sess.dash
	sess.dash = nil
	sess.token = ""
	sess.user = core.User{}
	sess.phase = Unauthenticated
	sess.client = sess.client.WithToken("")
	sess.mu.Unlock()

	if dash != nil {
		dash.Close()
	}
	s.store.forget(ctx, sess.ID)
}

func (s *Service) authFailed(ctx context.Context, sess *Session, op string, err error) error {
	kind := apiclient.Classify(err)
	s.logger.WarnContext(ctx, "Authentication failed",
		applog.FieldOperation, op,
		applog.FieldSessionID, sess.ID,
		applog.FieldErrorType, string(kind),
		applog.FieldError, err)
	if kind == apiclient.KindAuth {
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// expired reads the exp claim without checking the signature; the API remains
// the authority on validity. Tokens that are not JWTs are never expired here.
func expired(token string, now time.Time) bool {
	if token == "" {
		return true
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
