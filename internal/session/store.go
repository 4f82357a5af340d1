package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensedash/internal/apiclient"
	"expensedash/internal/cache"
	applog "expensedash/internal/log"
	"expensedash/internal/storage"
)

// persistEvery throttles last-seen writes to the token store.
const persistEvery = time.Minute

// TokenStore persists session tokens across restarts.
type TokenStore interface {
	Save(ctx context.Context, r storage.SessionRecord) error
	Load(ctx context.Context, id string) (storage.SessionRecord, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	PurgeOlderThan(ctx context.Context, t time.Time) (int64, error)
}

// StoreOptions configures a Store.
type StoreOptions struct {
	API     *apiclient.Client
	Tokens  TokenStore // nil keeps sessions in memory only
	MaxSize int
	TTL     time.Duration
	Logger  *applog.Logger
}

// Store holds live sessions in an LRU cache. Sessions evicted from the cache
// have their dashboards closed; persisted tokens let them come back in the
// Verifying phase.
type Store struct {
	api    *apiclient.Client
	tokens TokenStore
	ttl    time.Duration
	live   *cache.LRUCache[*Session]
	logger *applog.Logger
	now    func() time.Time

	restoreMu sync.Mutex
}

func NewStore(opts StoreOptions) *Store {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	s := &Store{
		api:    opts.API,
		tokens: opts.Tokens,
		ttl:    opts.TTL,
		logger: opts.Logger.WithComponent(applog.ComponentSession),
		now:    time.Now,
	}
	s.live = cache.NewLRUCache[*Session](opts.MaxSize, opts.TTL,
		cache.WithSlidingExpiry[*Session](),
		cache.WithEvictFunc(func(id string, sess *Session) {
			sess.close()
			s.logger.Debug("Session evicted", applog.FieldSessionID, id)
		}),
	)
	return s
}

// Create starts a fresh unauthenticated session.
func (s *Store) Create() (*Session, error) {
	client, err := s.api.Fork()
	if err != nil {
		return nil, fmt.Errorf("create session client: %w", err)
	}
	sess := newSession(uuid.NewString(), client, s.now())
	s.live.Set(sess.ID, sess)
	return sess, nil
}

// Get returns the live session for id, restoring it from the token store when
// it is not in memory. Unknown or malformed ids report false.
func (s *Store) Get(ctx context.Context, id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	if sess, ok := s.live.Get(id); ok {
		s.touch(ctx, sess)
		return sess, true
	}
	if s.tokens == nil {
		return nil, false
	}
	return s.restore(ctx, id)
}

// restore rebuilds a session from the token store. Restores are serialized and
// re-check the live cache so concurrent requests share one *Session.
func (s *Store) restore(ctx context.Context, id string) (*Session, bool) {
	s.restoreMu.Lock()
	defer s.restoreMu.Unlock()
	if sess, ok := s.live.Get(id); ok {
		return sess, true
	}

	rec, err := s.tokens.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.WarnContext(ctx, "Failed to restore session", applog.FieldSessionID, id, applog.FieldError, err)
		}
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(rec.LastSeenAt) > s.ttl {
		_ = s.tokens.Delete(ctx, id)
		return nil, false
	}

	client, err := s.api.Fork()
	if err != nil {
		return nil, false
	}
	sess := newSession(rec.ID, client.WithToken(rec.Token), rec.CreatedAt)
	sess.phase = Verifying
	sess.token = rec.Token
	sess.user = rec.User
	sess.lastPersisted = rec.LastSeenAt
	s.live.Set(sess.ID, sess)
	s.logger.InfoContext(ctx, "Session restored", applog.FieldSessionID, id, applog.FieldPhase, Verifying.String())
	return sess, true
}

func (s *Store) touch(ctx context.Context, sess *Session) {
	now := s.now()
	if !sess.touch(now, persistEvery) || s.tokens == nil {
		return
	}
	if err := s.tokens.Touch(ctx, sess.ID, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.WarnContext(ctx, "Failed to update session activity", applog.FieldSessionID, sess.ID, applog.FieldError, err)
	}
}

func (s *Store) persist(ctx context.Context, sess *Session) {
	if s.tokens == nil {
		return
	}
	sess.mu.Lock()
	rec := storage.SessionRecord{
		ID:         sess.ID,
		Token:      sess.token,
		User:       sess.user,
		CreatedAt:  sess.createdAt,
		LastSeenAt: s.now(),
	}
	sess.lastPersisted = rec.LastSeenAt
	sess.mu.Unlock()

	if err := s.tokens.Save(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist session", applog.FieldSessionID, sess.ID, applog.FieldError, err)
	}
}

func (s *Store) forget(ctx context.Context, id string) {
	if s.tokens == nil {
		return
	}
	if err := s.tokens.Delete(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete session", applog.FieldSessionID, id, applog.FieldError, err)
	}
}

// Remove drops a session from memory and from the token store, closing its
// dashboard.
func (s *Store) Remove(ctx context.Context, id string) {
	s.live.Delete(id)
	s.forget(ctx, id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.live.Size()
}

// CleanExpired drops expired live sessions. It satisfies cache.Cleaner.
func (s *Store) CleanExpired() int {
	return s.live.CleanExpired()
}

// PurgeStale removes persisted sessions idle for longer than the TTL.
func (s *Store) PurgeStale(ctx context.Context) (int64, error) {
	if s.tokens == nil || s.ttl <= 0 {
		return 0, nil
	}
	return s.tokens.PurgeOlderThan(ctx, s.now().Add(-s.ttl))
}

// Close closes every live session's dashboard.
func (s *Store) Close() {
	s.live.Purge()
}
