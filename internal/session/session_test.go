package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensedash/internal/apiclient"
	"expensedash/internal/apistub"
	"expensedash/internal/dashboard"
	"expensedash/internal/storage"
)

type fixture struct {
	api     *apiclient.Client
	tokens  *storage.SQLiteSessionStore
	store   *Store
	service *Service
}

func newFixture(t *testing.T, handler http.Handler, maxSize int) *fixture {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	api, err := apiclient.New(apiclient.Options{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	tokens, err := storage.NewSQLiteSessionStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { tokens.Close() })

	store := NewStore(StoreOptions{API: api, Tokens: tokens, MaxSize: maxSize, TTL: time.Hour})
	return &fixture{api: api, tokens: tokens, store: store, service: NewService(store, nil, nil)}
}

func stubHandler() http.Handler {
	return apistub.New(apistub.NewTokenService("test-secret-123", time.Hour), nil).Handler()
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "verifying", Verifying.String())
	assert.Equal(t, "unauthenticated", Unauthenticated.String())
	assert.Equal(t, "authenticated", Authenticated.String())
}

func TestRegisterLoginLogout(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	sess, err := f.store.Create()
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, sess.Phase())
	assert.False(t, sess.HasToken())
	assert.Nil(t, sess.Dashboard())

	require.NoError(t, f.service.Register(ctx, sess, "Ada", "ada@example.com", "secret1"))
	assert.Equal(t, Authenticated, sess.Phase())
	assert.Equal(t, "ada@example.com", sess.User().Email)
	require.NotNil(t, sess.Dashboard())
	require.NoError(t, sess.Dashboard().Load(ctx))

	rec, err := f.tokens.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Token(), rec.Token)

	dash := sess.Dashboard()
	f.service.Logout(ctx, sess)
	assert.Equal(t, Unauthenticated, sess.Phase())
	assert.False(t, sess.HasToken())
	assert.Nil(t, sess.Dashboard())
	assert.ErrorIs(t, dash.Load(ctx), dashboard.ErrClosed)
	_, err = f.tokens.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = f.service.Login(ctx, sess, "ada@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, Unauthenticated, sess.Phase())

	require.NoError(t, f.service.Login(ctx, sess, "ada@example.com", "secret1"))
	assert.Equal(t, Authenticated, sess.Phase())
}

func TestRestoreAndVerify(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	sess, err := f.store.Create()
	require.NoError(t, err)
	require.NoError(t, f.service.Register(ctx, sess, "Ada", "ada@example.com", "secret1"))

	// A second store over the same token database models a process restart.
	restarted := NewStore(StoreOptions{API: f.api, Tokens: f.tokens, MaxSize: 10, TTL: time.Hour})
	svc := NewService(restarted, nil, nil)

	restored, ok := restarted.Get(ctx, sess.ID)
	require.True(t, ok)
	assert.Equal(t, Verifying, restored.Phase())
	assert.True(t, restored.HasToken())
	assert.Nil(t, restored.Dashboard())

	require.NoError(t, svc.Verify(ctx, restored))
	assert.Equal(t, Authenticated, restored.Phase())
	assert.Equal(t, sess.User().ID, restored.User().ID)
	assert.NotNil(t, restored.Dashboard())

	// Verification of an authenticated session is a no-op.
	require.NoError(t, svc.Verify(ctx, restored))
}

func TestVerifyExpiredToken(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	expiredTokens := apistub.NewTokenService("test-secret-123", -time.Minute)
	token, err := expiredTokens.GenerateToken("u1")
	require.NoError(t, err)

	id := "6f1d3c1e-8a4b-4e59-9a43-2f7e0c1b5d21"
	now := time.Now()
	require.NoError(t, f.tokens.Save(ctx, storage.SessionRecord{ID: id, Token: token, CreatedAt: now, LastSeenAt: now}))

	sess, ok := f.store.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, Verifying, sess.Phase())

	assert.ErrorIs(t, f.service.Verify(ctx, sess), ErrTokenExpired)
	assert.Equal(t, Unauthenticated, sess.Phase())
	_, err = f.tokens.Load(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVerifyRejectedToken(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	id := "0b0f1c8e-2d3a-4c5b-8e6f-7a8b9c0d1e2f"
	now := time.Now()
	require.NoError(t, f.tokens.Save(ctx, storage.SessionRecord{ID: id, Token: "not-a-jwt", CreatedAt: now, LastSeenAt: now}))

	sess, ok := f.store.Get(ctx, id)
	require.True(t, ok)
	err := f.service.Verify(ctx, sess)
	require.Error(t, err)
	assert.Equal(t, apiclient.KindAuth, apiclient.Classify(err))
	assert.Equal(t, Unauthenticated, sess.Phase())
}

func TestGetUnknownOrMalformed(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	_, ok := f.store.Get(ctx, "not-a-uuid")
	assert.False(t, ok)
	_, ok = f.store.Get(ctx, "6f1d3c1e-8a4b-4e59-9a43-2f7e0c1b5d21")
	assert.False(t, ok)
}

func TestGetDropsStalePersistedSession(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	id := "6f1d3c1e-8a4b-4e59-9a43-2f7e0c1b5d21"
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.tokens.Save(ctx, storage.SessionRecord{ID: id, Token: "t", CreatedAt: old, LastSeenAt: old}))

	_, ok := f.store.Get(ctx, id)
	assert.False(t, ok)
	_, err := f.tokens.Load(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEvictionClosesDashboard(t *testing.T) {
	f := newFixture(t, stubHandler(), 1)
	ctx := context.Background()

	first, err := f.store.Create()
	require.NoError(t, err)
	require.NoError(t, f.service.Register(ctx, first, "Ada", "ada@example.com", "secret1"))
	dash := first.Dashboard()

	_, err = f.store.Create()
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.Len())
	assert.ErrorIs(t, dash.Load(ctx), dashboard.ErrClosed)
}

func TestConcurrentRestoreSharesSession(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	sess, err := f.store.Create()
	require.NoError(t, err)
	require.NoError(t, f.service.Register(ctx, sess, "Ada", "ada@example.com", "secret1"))

	restarted := NewStore(StoreOptions{API: f.api, Tokens: f.tokens, MaxSize: 10, TTL: time.Hour})

	const workers = 8
	got := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = restarted.Get(ctx, sess.ID)
		}(i)
	}
	wg.Wait()

	require.NotNil(t, got[0])
	for i := 1; i < workers; i++ {
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, restarted.Len())
}

func TestRemoveForgetsSession(t *testing.T) {
	f := newFixture(t, stubHandler(), 10)
	ctx := context.Background()

	sess, err := f.store.Create()
	require.NoError(t, err)
	require.NoError(t, f.service.Register(ctx, sess, "Ada", "ada@example.com", "secret1"))
	dash := sess.Dashboard()

	f.store.Remove(ctx, sess.ID)

	_, ok := f.store.Get(ctx, sess.ID)
	assert.False(t, ok)
	_, err = f.tokens.Load(ctx, sess.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, dash.Load(ctx), dashboard.ErrClosed)
}

func TestDashboardAuthFailureExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"opaque","user":{"id":"u1","name":"Ada","email":"a@b.c"}}`))
	})
	mux.HandleFunc("/expenses", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
	})
	f := newFixture(t, mux, 10)
	ctx := context.Background()

	sess, err := f.store.Create()
	require.NoError(t, err)
	require.NoError(t, f.service.Login(ctx, sess, "a@b.c", "pw"))

	err = sess.Dashboard().Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiclient.ErrUnauthorized))
	assert.Equal(t, Unauthenticated, sess.Phase())
	assert.Nil(t, sess.Dashboard())
}

func TestExpired(t *testing.T) {
	now := time.Now()
	live, err := apistub.NewTokenService("k-123456", time.Hour).GenerateToken("u")
	require.NoError(t, err)
	dead, err := apistub.NewTokenService("k-123456", -time.Hour).GenerateToken("u")
	require.NoError(t, err)

	assert.False(t, expired(live, now))
	assert.True(t, expired(dead, now))
	assert.False(t, expired("opaque-token", now))
	assert.True(t, expired("", now))
}
