package middleware

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
)

// Allower is the subset of *ratelimit.Limiter this middleware needs.
type Allower interface {
	Allow(userID int64) bool
}

// RateLimit drops an update when the effective user's bucket is empty,
// optionally notifying them once, per spec.md §4.4. It is only attached to
// bots whose BotConfig.RateLimiting.Enabled is true.
func RateLimit(limiter Allower, notifyDrops bool) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) error {
			if ctx.EffectiveUser == nil {
				return next(b, ctx)
			}
			if limiter.Allow(ctx.EffectiveUser.Id) {
				return next(b, ctx)
			}
			if notifyDrops && ctx.EffectiveChat != nil {
				_, _ = b.SendMessage(ctx.EffectiveChat.Id, "You're sending messages too fast, please slow down.", nil)
			}
			return nil
		}
	}
}
