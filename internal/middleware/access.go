package middleware

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/entity"
	"multibot/internal/plugin"
)

// Access enforces a bot's Access.{allowed_users,blocked_users,admin_users}
// lists before any handler runs. It is attached unconditionally, ahead of
// Session and Tokens, so a blocked user never touches the bot_users table
// or the token ledger.
func Access(access entity.Access) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) error {
			if ctx.EffectiveUser == nil {
				return next(b, ctx)
			}
			if !access.IsAllowed(ctx.EffectiveUser.Id) {
				return nil
			}
			return next(b, ctx)
		}
	}
}
