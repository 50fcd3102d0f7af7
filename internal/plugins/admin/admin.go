// Package admin implements fleet-administration commands supplemented from
// original_source/src/admin/: bot start/stop, a bot and status listing, and
// a stats summary, gated by each bot's entity.BotConfig.Access.admin list.
// Grounded on the teacher's bot/admin.go requireAdmin-per-handler idiom
// rather than a global access middleware, re-themed from user approval onto
// bot-fleet control.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/entity"
	"multibot/internal/botmgr"
	"multibot/internal/plugin"
	"multibot/lib/tgfmt"
)

// ManagerController is the subset of *botmgr.Manager the admin plugin needs,
// narrowed so tests can substitute a stub fleet.
type ManagerController interface {
	Config(id string) (*entity.BotConfig, error)
	StartBot(ctx context.Context, id string) error
	StopBot(ctx context.Context, id string) error
	RestartBot(ctx context.Context, id string) error
	Status(id string) (botmgr.Status, error)
	ListStatuses() []botmgr.Status
}

// StatsSnapshotter is the subset of *stats.Collector the admin plugin needs
// for /stats, narrowed for the same reason.
type StatsSnapshotter interface {
	Snapshot() map[string]entity.Delta
}

type Class struct {
	Manager ManagerController
	Stats   StatsSnapshotter
}

func (Class) Name() string            { return "admin" }
func (Class) Version() string         { return "1.0.0" }
func (Class) Dependencies() []string  { return nil }
func (Class) SupportsHotReload() bool { return true }
func (c Class) New(_ map[string]any) plugin.Plugin {
	return &Plugin{manager: c.Manager, stats: c.Stats}
}

type Plugin struct {
	botID   string
	log     *slog.Logger
	manager ManagerController
	stats   StatsSnapshotter
}

func (p *Plugin) Setup(_ context.Context, botID string, log *slog.Logger) error {
	p.botID = botID
	p.log = log
	return nil
}

func (p *Plugin) Shutdown(_ context.Context) error { return nil }

func (p *Plugin) Register(r *plugin.Router) {
	r.Command("bots", p.bots)
	r.Command("botstart", p.botstart)
	r.Command("botstop", p.botstop)
	r.Command("stats", p.stats_)
	r.Command("status", p.status)
}

// requireAdminUserID checks userID against this bot's admin list, isolated
// from the Telegram types so it can be tested without a live *tgbotapi.Bot.
func (p *Plugin) requireAdminUserID(userID int64) bool {
	cfg, err := p.manager.Config(p.botID)
	if err != nil {
		return false
	}
	return cfg.Access.IsAdmin(userID)
}

func (p *Plugin) requireAdmin(b *tgbotapi.Bot, ctx *ext.Context) bool {
	if p.requireAdminUserID(ctx.EffectiveUser.Id) {
		return true
	}
	_, _ = b.SendMessage(ctx.EffectiveChat.Id, "Admin access required\\.", nil)
	return false
}

// bots lists every managed bot and its current state.
func (p *Plugin) bots(b *tgbotapi.Bot, ctx *ext.Context) error {
	if !p.requireAdmin(b, ctx) {
		return nil
	}

	statuses := p.manager.ListStatuses()
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].BotID < statuses[j].BotID })

	if len(statuses) == 0 {
		_, err := b.SendMessage(ctx.EffectiveChat.Id, "No bots registered\\.", nil)
		return err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Bots* \\(%d total\\)\n", len(statuses)))
	for _, s := range statuses {
		sb.WriteString(fmt.Sprintf("%s \\- %s\n", tgfmt.Sanitize(s.BotID), tgfmt.Sanitize(string(s.State))))
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, sb.String(), &tgbotapi.SendMessageOpts{ParseMode: "MarkdownV2"})
	return err
}

func (p *Plugin) botstart(b *tgbotapi.Bot, ctx *ext.Context) error {
	if !p.requireAdmin(b, ctx) {
		return nil
	}
	return p.controlTarget(b, ctx, "/botstart", p.manager.StartBot)
}

func (p *Plugin) botstop(b *tgbotapi.Bot, ctx *ext.Context) error {
	if !p.requireAdmin(b, ctx) {
		return nil
	}
	return p.controlTarget(b, ctx, "/botstop", p.manager.StopBot)
}

func (p *Plugin) controlTarget(b *tgbotapi.Bot, ctx *ext.Context, usage string, action func(context.Context, string) error) error {
	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		_, err := b.SendMessage(ctx.EffectiveChat.Id, "Usage: `"+usage+" <bot_id>`", nil)
		return err
	}

	target := args[1]
	if err := action(context.Background(), target); err != nil {
		_, sendErr := b.SendMessage(ctx.EffectiveChat.Id, "Failed: "+tgfmt.Sanitize(err.Error()), nil)
		return sendErr
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, tgfmt.Sanitize(target)+" updated\\.", &tgbotapi.SendMessageOpts{ParseMode: "MarkdownV2"})
	return err
}

// stats_ reports the in-memory hot counters for every bot since the last
// flush. Named with a trailing underscore to avoid colliding with the
// p.stats field.
func (p *Plugin) stats_(b *tgbotapi.Bot, ctx *ext.Context) error {
	if !p.requireAdmin(b, ctx) {
		return nil
	}

	snapshot := p.stats.Snapshot()
	if len(snapshot) == 0 {
		_, err := b.SendMessage(ctx.EffectiveChat.Id, "No activity recorded since the last flush\\.", nil)
		return err
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	sb.WriteString("*Stats since last flush*\n")
	for _, id := range ids {
		d := snapshot[id]
		sb.WriteString(fmt.Sprintf("%s \\- msgs:%d cmds:%d users:%d errs:%d\n",
			tgfmt.Sanitize(id), d.Messages, d.Commands, d.UniqueUsers, d.Errors))
	}
	_, err := b.SendMessage(ctx.EffectiveChat.Id, sb.String(), &tgbotapi.SendMessageOpts{ParseMode: "MarkdownV2"})
	return err
}

func (p *Plugin) status(b *tgbotapi.Bot, ctx *ext.Context) error {
	if !p.requireAdmin(b, ctx) {
		return nil
	}

	s, err := p.manager.Status(p.botID)
	if err != nil {
		_, sendErr := b.SendMessage(ctx.EffectiveChat.Id, "Status unavailable: "+tgfmt.Sanitize(err.Error()), nil)
		return sendErr
	}

	uptime := "not started"
	if s.StartedAt != nil {
		uptime = time.Since(*s.StartedAt).Round(time.Second).String()
	}
	text := fmt.Sprintf("Bot: %s\nState: %s\nUptime: %s", tgfmt.Sanitize(s.BotID), tgfmt.Sanitize(string(s.State)), tgfmt.Sanitize(uptime))
	if s.ErrorMessage != "" {
		text += "\nError: " + tgfmt.Sanitize(s.ErrorMessage)
	}
	_, err = b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}
