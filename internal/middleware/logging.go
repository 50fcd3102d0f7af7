// Package middleware implements the per-bot middleware chain from
// spec.md §4.3: logging, stats, store session, token balance, rate limit,
// and error handling, composed outermost-first around every plugin handler
// by the dispatcher factory.
package middleware

import (
	"log/slog"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/google/uuid"

	"multibot/internal/plugin"
	"multibot/lib/sl"
)

// requestID tags a single update's path through the middleware chain for
// log correlation.
func requestID() string {
	return uuid.NewString()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func eventContent(ctx *ext.Context) string {
	switch {
	case ctx.CallbackQuery != nil:
		return "cb:" + ctx.CallbackQuery.Data
	case ctx.EffectiveMessage != nil:
		return ctx.EffectiveMessage.Text
	default:
		return ""
	}
}

func eventType(ctx *ext.Context) string {
	switch {
	case ctx.CallbackQuery != nil:
		return "callback"
	case ctx.EffectiveMessage != nil && len(ctx.EffectiveMessage.Text) > 0 && ctx.EffectiveMessage.Text[0] == '/':
		return "command"
	case ctx.EffectiveMessage != nil:
		return "message"
	default:
		return "unknown"
	}
}

// Logging tags each request with a short id, logs entry and exit with
// elapsed time, matching the teacher's structured slog usage throughout
// bot/*.go.
func Logging(log *slog.Logger) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) error {
			id := requestID()
			var userID int64
			if ctx.EffectiveUser != nil {
				userID = ctx.EffectiveUser.Id
			}
			kind := eventType(ctx)
			l := log.With(slog.String("request_id", id), slog.Int64("user_id", userID), slog.String("event", kind))
			l.Debug("request", slog.String("content", truncate(eventContent(ctx), 120)))

			start := time.Now()
			err := next(b, ctx)
			elapsed := time.Since(start)

			if err != nil {
				l.With(sl.Err(err)).Warn("request failed", slog.Int64("elapsed_ms", elapsed.Milliseconds()))
			} else {
				l.Debug("request done", slog.Int64("elapsed_ms", elapsed.Milliseconds()))
			}
			return err
		}
	}
}
