// Package storage persists session tokens so a restart does not log every
// browser out.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"expensedash/internal/core"
	applog "expensedash/internal/log"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session row matches.
var ErrNotFound = errors.New("session not found")

// SessionRecord is the persisted part of a browser session.
type SessionRecord struct {
	ID         string
	Token      string
	User       core.User
	CreatedAt  time.Time
	LastSeenAt time.Time
}

type SQLiteSessionStore struct {
	db      *sql.DB
	queries *Queries
	logger  *applog.Logger
}

func NewSQLiteSessionStore(dbPath string, logger *applog.Logger) (*SQLiteSessionStore, error) {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteSessionStore{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(applog.ComponentStorage),
	}, nil
}

func (s *SQLiteSessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (s *SQLiteSessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save inserts or replaces a session row. CreatedAt is kept on update.
func (s *SQLiteSessionStore) Save(ctx context.Context, r SessionRecord) error {
	err := s.queries.UpsertSession(ctx, UpsertSessionParams{
		ID:         r.ID,
		Token:      r.Token,
		UserID:     r.User.ID,
		UserName:   r.User.Name,
		UserEmail:  r.User.Email,
		CreatedAt:  r.CreatedAt.UTC().UnixMilli(),
		LastSeenAt: r.LastSeenAt.UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.logger.DebugContext(ctx, "Session persisted", applog.FieldSessionID, r.ID, applog.FieldUserID, r.User.ID)
	return nil
}

// Load returns the session row for id, or ErrNotFound.
func (s *SQLiteSessionStore) Load(ctx context.Context, id string) (SessionRecord, error) {
	row, err := s.queries.GetSession(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("load session: %w", err)
	}
	return SessionRecord{
		ID:    row.ID,
		Token: row.Token,
		User: core.User{
			ID:    row.UserID,
			Name:  row.UserName,
			Email: row.UserEmail,
		},
		CreatedAt:  time.UnixMilli(row.CreatedAt).UTC(),
		LastSeenAt: time.UnixMilli(row.LastSeenAt).UTC(),
	}, nil
}

// Touch moves the last-seen time of id forward.
func (s *SQLiteSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	n, err := s.queries.TouchSession(ctx, at.UTC().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.queries.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// PurgeOlderThan deletes sessions not seen since t and reports how many went.
func (s *SQLiteSessionStore) PurgeOlderThan(ctx context.Context, t time.Time) (int64, error) {
	n, err := s.queries.DeleteSessionsSeenBefore(ctx, t.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "Purged stale sessions", applog.FieldCount, n)
	}
	return n, nil
}

// Count returns the number of stored sessions.
func (s *SQLiteSessionStore) Count(ctx context.Context) (int64, error) {
	return s.queries.CountSessions(ctx)
}
