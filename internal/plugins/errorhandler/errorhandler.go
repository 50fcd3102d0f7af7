// Package errorhandler implements the built-in error-handler plugin. Its
// per-request job is already covered by internal/middleware/recover.go;
// this plugin additionally supplies the dispatcher-level error callback
// gotgbot invokes for panics and unhandled handler errors, grounded on the
// teacher's ext.DispatcherOpts.Error closure in bot/tgbot.go.
package errorhandler

import (
	"context"
	"log/slog"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/internal/plugin"
	"multibot/lib/sl"
)

type Class struct{}

func (Class) Name() string                          { return "errorhandler" }
func (Class) Version() string                        { return "1.0.0" }
func (Class) Dependencies() []string                 { return nil }
func (Class) SupportsHotReload() bool                { return true }
func (Class) New(config map[string]any) plugin.Plugin { return &Plugin{} }

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

// Register attaches nothing: this plugin's only contribution is the
// dispatcher error callback below.
func (p *Plugin) Register(r *plugin.Router) {}

func (p *Plugin) HandleDispatchError(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
	p.log.With(sl.BotID(p.botID), sl.Err(err)).Error("unhandled dispatch error")
	return ext.DispatcherActionNoop
}
