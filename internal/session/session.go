// Package session tracks who each browser is. A session moves between three
// phases: Verifying (token known, not yet confirmed with the API),
// Unauthenticated and Authenticated.
package session

import (
	"sync"
	"time"

	"expensedash/internal/apiclient"
	"expensedash/internal/core"
	"expensedash/internal/dashboard"
	"expensedash/internal/notify"
)

// Phase is the authentication state of a session.
type Phase int

const (
	Verifying Phase = iota
	Unauthenticated
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Verifying:
		return "verifying"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is one browser's state. Accessors are safe for concurrent use.
type Session struct {
	ID string

	// verifyMu serializes verification so it runs once per Verifying phase.
	verifyMu sync.Mutex

	mu            sync.RWMutex
	phase         Phase
	user          core.User
	token         string
	createdAt     time.Time
	lastSeen      time.Time
	lastPersisted time.Time
	client        *apiclient.Client
	dash          *dashboard.Manager
	toasts        *notify.Queue
}

func newSession(id string, client *apiclient.Client, now time.Time) *Session {
	return &Session{
		ID:        id,
		phase:     Unauthenticated,
		createdAt: now,
		lastSeen:  now,
		client:    client,
		toasts:    notify.NewQueue(),
	}
}

func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *Session) User() core.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// HasToken reports whether the session holds a token, confirmed or not.
func (s *Session) HasToken() bool {
	return s.Token() != ""
}

// Dashboard returns the view-state manager, or nil unless authenticated.
func (s *Session) Dashboard() *dashboard.Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dash
}

// Toasts returns the queue of pending notifications.
func (s *Session) Toasts() *notify.Queue {
	return s.toasts
}

func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

func (s *Session) apiClient() *apiclient.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// touch records activity and reports whether the persisted copy is stale.
func (s *Session) touch(now time.Time, persistEvery time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	if s.token == "" || now.Sub(s.lastPersisted) < persistEvery {
		return false
	}
	s.lastPersisted = now
	return true
}

// close stops the dashboard so late API responses are dropped.
func (s *Session) close() {
	s.mu.Lock()
	dash := s.dash
	s.dash = nil
	s.mu.Unlock()
	if dash != nil {
		dash.Close()
	}
}
