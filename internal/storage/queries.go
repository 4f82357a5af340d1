package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Session struct {
	ID         string
	Token      string
	UserID     string
	UserName   string
	UserEmail  string
	CreatedAt  int64
	LastSeenAt int64
}

const upsertSession = `-- name: UpsertSession :exec
INSERT INTO sessions (id, token, user_id, user_name, user_email, created_at, last_seen_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    token = excluded.token,
    user_id = excluded.user_id,
    user_name = excluded.user_name,
    user_email = excluded.user_email,
    last_seen_at = excluded.last_seen_at
`

type UpsertSessionParams = Session

func (q *Queries) UpsertSession(ctx context.Context, arg UpsertSessionParams) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.ID,
		arg.Token,
		arg.UserID,
		arg.UserName,
		arg.UserEmail,
		arg.CreatedAt,
		arg.LastSeenAt,
	)
	return err
}

const getSession = `-- name: GetSession :one
SELECT id, token, user_id, user_name, user_email, created_at, last_seen_at
FROM sessions
WHERE id = ?
`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Token,
		&i.UserID,
		&i.UserName,
		&i.UserEmail,
		&i.CreatedAt,
		&i.LastSeenAt,
	)
	return i, err
}

const touchSession = `-- name: TouchSession :execrows
UPDATE sessions SET last_seen_at = ? WHERE id = ?
`

func (q *Queries) TouchSession(ctx context.Context, lastSeenAt int64, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, touchSession, lastSeenAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSession = `-- name: DeleteSession :exec
DELETE FROM sessions WHERE id = ?
`

func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, id)
	return err
}

const deleteSessionsSeenBefore = `-- name: DeleteSessionsSeenBefore :execrows
DELETE FROM sessions WHERE last_seen_at < ?
`

func (q *Queries) DeleteSessionsSeenBefore(ctx context.Context, before int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSessionsSeenBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countSessions = `-- name: CountSessions :one
SELECT COUNT(*) FROM sessions
`

func (q *Queries) CountSessions(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countSessions)
	var count int64
	err := row.Scan(&count)
	return count, err
}
