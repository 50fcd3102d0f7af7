package middleware

import (
	"context"
	"database/sql"
	"fmt"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
	"multibot/internal/store/repo"
)

// SessionStore is the subset of *store.Store the session middleware needs.
type SessionStore interface {
	WithSession(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Session opens a scoped transactional session per update, touches the
// bot_users row for the effective user, injects the transaction and the
// new-user flag into ctx.Data, and commits on a clean handler return or
// rolls back on error — the explicit replacement for an async
// context-manager session called out in the REDESIGN FLAGS.
func Session(botID string, store SessionStore) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) error {
			if ctx.EffectiveUser == nil {
				return next(b, ctx)
			}

			return store.WithSession(context.Background(), func(tx *sql.Tx) error {
				isNew, err := repo.TouchUser(context.Background(), tx, ctx.EffectiveUser.Id, botID, ctx.EffectiveUser.Username)
				if err != nil {
					return fmt.Errorf("middleware: session touch user: %w", err)
				}
				setData(ctx, keyTx, tx)
				setData(ctx, keyIsNewUser, isNew)
				return next(b, ctx)
			})
		}
	}
}
