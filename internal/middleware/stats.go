package middleware

import (
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
)

// Recorder is the subset of *stats.Collector this middleware needs,
// narrowed to a local interface so it can be unit tested without the real
// collector's ticker goroutine.
type Recorder interface {
	RecordMessage(botID string, userID int64, isNewUser bool)
	RecordCommand(botID string, userID int64, command string, isNewUser bool)
	RecordCallback(botID string, userID int64)
	RecordError(botID string)
}

// commandName strips the leading "/" and any "@bot_mention" suffix from a
// command's entity text, e.g. "/start@my_bot" -> "start", per spec.md §4.3.
func commandName(text string) string {
	name := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return name
}

// Stats classifies the event and records it into the collector, then calls
// next; on error it also records an error count and re-raises. Stats sits
// outside the session middleware in the chain, so the is-new-user flag the
// session layer determines is not yet known when Stats would naturally
// record — instead Stats calls next first and records once the inner
// layers (including Session) have run and populated ctx.Data.
func Stats(botID string, rec Recorder) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) error {
			var userID int64
			if ctx.EffectiveUser != nil {
				userID = ctx.EffectiveUser.Id
			}
			kind := eventType(ctx)

			err := next(b, ctx)

			fresh := IsNewUser(ctx)
			switch kind {
			case "command":
				rec.RecordCommand(botID, userID, commandName(ctx.EffectiveMessage.Text), fresh)
			case "callback":
				rec.RecordCallback(botID, userID)
			default:
				rec.RecordMessage(botID, userID, fresh)
			}
			if err != nil {
				rec.RecordError(botID)
			}
			return err
		}
	}
}
