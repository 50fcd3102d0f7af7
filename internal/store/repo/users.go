package repo

import (
	"context"
	"database/sql"
	"fmt"
)

// UsersRepo persists the bot_users row for each (telegram_id, bot_id)
// pair a bot has ever seen, backing the session middleware's "ensure this
// user is known" step and the stats collector's new-user detection.
type UsersRepo struct {
	db *sql.DB
}

func NewUsersRepo(db *sql.DB) *UsersRepo {
	return &UsersRepo{db: db}
}

// Touch records a contact from telegramID on botID, creating the row on
// first contact and bumping last_seen otherwise. It reports whether this
// call created the row, i.e. whether the user is new to this bot.
func (r *UsersRepo) Touch(ctx context.Context, telegramID int64, botID, username string) (isNew bool, err error) {
	return TouchUser(ctx, r.db, telegramID, botID, username)
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting TouchUser run
// either standalone or inside the session middleware's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TouchUser upserts a bot_users row against any execer (a pool or an open
// transaction), reporting whether the row was freshly created.
func TouchUser(ctx context.Context, db execer, telegramID int64, botID, username string) (isNew bool, err error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO bot_users (telegram_id, bot_id, username)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE username = VALUES(username), last_seen = CURRENT_TIMESTAMP
	`, telegramID, botID, username)
	if err != nil {
		return false, fmt.Errorf("repo: touch user: %w", err)
	}
	// MySQL's ON DUPLICATE KEY UPDATE reports 1 row affected for a fresh
	// insert and 2 for an update that actually changed a column.
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("repo: touch user rows affected: %w", err)
	}
	return n == 1, nil
}
