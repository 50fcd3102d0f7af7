// Package start implements the built-in start plugin, substituted along
// with help and errorhandler whenever a bot's config lists no plugins,
// grounded on the teacher's bot/commands.go start-command handler.
package start

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
	"multibot/lib/tgfmt"
)

// Class is the compiled-in start plugin's static identity.
type Class struct{}

func (Class) Name() string                          { return "start" }
func (Class) Version() string                        { return "1.0.0" }
func (Class) Dependencies() []string                 { return nil }
func (Class) SupportsHotReload() bool                { return true }
func (Class) New(config map[string]any) plugin.Plugin { return &Plugin{} }

// Plugin greets a user on /start. It does not persist anything itself —
// bot_users registration is the session middleware's job.
type Plugin struct {
	botID string
	log   *slog.Logger
}

func (p *Plugin) Setup(_ context.Context, botID string, log *slog.Logger) error {
	p.botID = botID
	p.log = log
	return nil
}

func (p *Plugin) Shutdown(_ context.Context) error { return nil }

func (p *Plugin) Register(r *plugin.Router) {
	r.Command("start", p.start)
}

func (p *Plugin) start(b *tgbotapi.Bot, ctx *ext.Context) error {
	name := ctx.EffectiveUser.FirstName
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi %s! Send /help to see what I can do.", tgfmt.Sanitize(name))
	_, err := b.SendMessage(ctx.EffectiveChat.Id, text, &tgbotapi.SendMessageOpts{ParseMode: "MarkdownV2"})
	return err
}
