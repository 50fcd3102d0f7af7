package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
	"multibot/lib/sl"
)

// Recover is the innermost middleware, wrapping the plugin handler
// directly. It turns a panic into a logged error carrying a short id and a
// stack trace, optionally notifies the user, and returns the error so
// Stats (outside it in the chain) still sees and counts the failure;
// gotgbot's own dispatcher-level error callback is the final backstop if
// this error reaches all the way back out.
func Recover(log *slog.Logger, notifyUser bool) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) (err error) {
			defer func() {
				if p := recover(); p != nil {
					id := requestID()
					log.Error("panic in handler", slog.String("error_id", id),
						slog.Any("panic", p), slog.String("stack", string(debug.Stack())))
					err = fmt.Errorf("handler panic [%s]: %v", id, p)
					if notifyUser && b != nil && ctx != nil && ctx.EffectiveChat != nil {
						_, _ = b.SendMessage(ctx.EffectiveChat.Id, "Something went wrong handling your request.", nil)
					}
				}
			}()

			err = next(b, ctx)
			if err != nil {
				id := requestID()
				log.With(sl.Err(err)).Error("handler error", slog.String("error_id", id))
				if notifyUser && ctx.EffectiveChat != nil {
					_, _ = b.SendMessage(ctx.EffectiveChat.Id, "Something went wrong handling your request.", nil)
				}
			}
			return err
		}
	}
}
