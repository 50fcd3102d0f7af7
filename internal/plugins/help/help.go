// Package help implements the built-in help plugin.
package help

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
)

type Class struct{}

func (Class) Name() string                          { return "help" }
func (Class) Version() string                        { return "1.0.0" }
func (Class) Dependencies() []string                 { return nil }
func (Class) SupportsHotReload() bool                { return true }
func (Class) New(config map[string]any) plugin.Plugin { return &Plugin{} }

// Plugin answers /help with a static command summary.
type Plugin struct {
	log *slog.Logger
}

func (p *Plugin) Setup(_ context.Context, _ string, log *slog.Logger) error {
	p.log = log
	return nil
}

func (p *Plugin) Shutdown(_ context.Context) error { return nil }

func (p *Plugin) Register(r *plugin.Router) {
	r.Command("help", p.help)
}

func (p *Plugin) help(b *tgbotapi.Bot, ctx *ext.Context) error {
	lines := []string{
		"/start \\- say hello",
		"/help \\- this message",
		"/balance \\- check your token balance",
		"/buy \\- purchase more tokens",
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, strings.Join(lines, "\n"), &tgbotapi.SendMessageOpts{ParseMode: "MarkdownV2"})
	return err
}
