// Package horoscope implements the daily-horoscope plugin supplemented
// from original_source/src/plugins/custom/horoscope/plugin.py: a zodiac
// sign picker, a per-user subscription stored in PluginState, a
// ledger-backed token charge per reading, and a daily delivery scheduler
// grounded on the teacher's bot/digest.go ticker idiom. The scheduler sends
// nothing, because allActiveSubscriptions lists no subscribers.
package horoscope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"go.mongodb.org/mongo-driver/bson"

	"multibot/entity"
	"multibot/internal/ledger"
	"multibot/internal/plugin"
	"multibot/internal/store/repo"
	"multibot/internal/tg"
	"multibot/lib/sl"
)

// ClientProvider resolves the live wire client for a running bot, satisfied
// by *botmgr.Manager. Looked up lazily rather than captured at Setup time,
// since the manager constructs the dispatcher factory before a bot's client
// exists.
type ClientProvider interface {
	GetClient(botID string) (*tg.Client, error)
}

const (
	cbSign        = "zodiac:"
	readingCost   = int64(1)
	stateKeySub   = "subscription"
	deliveryTick  = time.Hour
	deliveryClock = 9 // hour of day, server-local time, readings are sent at
)

// Class is injected with the Ledger, the plugin-state store and the bot
// manager (as ClientProvider) by the dispatcher factory, the same pattern as
// the billing plugin's Class.
type Class struct {
	Ledger      *ledger.Ledger
	PluginState *repo.PluginStateRepo
	Clients     ClientProvider
}

func (Class) Name() string            { return "horoscope" }
func (Class) Version() string         { return "1.0.0" }
func (Class) Dependencies() []string  { return []string{"billing"} }
func (Class) SupportsHotReload() bool { return true }
func (c Class) New(_ map[string]any) plugin.Plugin {
	return &Plugin{ledger: c.Ledger, state: c.PluginState, clients: c.Clients}
}

// subscription is the PluginState document shape for this plugin's scratch
// space, one per subscribed user.
type subscription struct {
	TelegramID int64  `bson:"telegram_id"`
	ChatID     int64  `bson:"chat_id"`
	Sign       string `bson:"sign"`
	Active     bool   `bson:"active"`
}

type Plugin struct {
	botID   string
	log     *slog.Logger
	ledger  *ledger.Ledger
	state   *repo.PluginStateRepo
	clients ClientProvider

	stopCh chan struct{}
	done   chan struct{}
}

func (p *Plugin) Setup(_ context.Context, botID string, log *slog.Logger) error {
	p.botID = botID
	p.log = log.With(sl.Module("plugins.horoscope"))
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	go p.runScheduler()
	return nil
}

func (p *Plugin) Shutdown(_ context.Context) error {
	close(p.stopCh)
	<-p.done
	return nil
}

func (p *Plugin) Register(r *plugin.Router) {
	r.Command("horoscope", p.horoscope)
	r.Command("subscribe", p.subscribe)
	r.Command("unsubscribe", p.unsubscribe)
	r.Add(handlers.NewCallback(callbackquery.Prefix(cbSign), p.onSignChosen))
}

func (p *Plugin) horoscope(b *tgbotapi.Bot, ctx *ext.Context) error {
	_, err := b.SendMessage(ctx.EffectiveChat.Id, "Pick your zodiac sign:", &tgbotapi.SendMessageOpts{
		ReplyMarkup: signKeyboard(),
	})
	return err
}

func (p *Plugin) subscribe(b *tgbotapi.Bot, ctx *ext.Context) error {
	_, err := b.SendMessage(ctx.EffectiveChat.Id, "Pick the sign you'd like a daily reading for:", &tgbotapi.SendMessageOpts{
		ReplyMarkup: signKeyboard(),
	})
	return err
}

func (p *Plugin) unsubscribe(b *tgbotapi.Bot, ctx *ext.Context) error {
	userID := ctx.EffectiveUser.Id
	sub, found, err := p.loadSubscription(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("horoscope plugin: unsubscribe: %w", err)
	}
	if !found || !sub.Active {
		_, err := b.SendMessage(ctx.EffectiveChat.Id, "You are not subscribed.", nil)
		return err
	}

	sub.Active = false
	if err := p.saveSubscription(context.Background(), sub); err != nil {
		return fmt.Errorf("horoscope plugin: unsubscribe save: %w", err)
	}
	_, err = b.SendMessage(ctx.EffectiveChat.Id, "Unsubscribed from daily horoscopes.", nil)
	return err
}

func (p *Plugin) onSignChosen(b *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	sign := strings.TrimPrefix(cq.Data, cbSign)
	if !entity.IsZodiacSign(sign) {
		_, _ = cq.Answer(b, &tgbotapi.AnswerCallbackQueryOpts{Text: "Unknown sign.", ShowAlert: true})
		return nil
	}

	if _, err := p.ledger.Consume(context.Background(), cq.From.Id, p.botID, readingCost, "horoscope_reading"); err != nil {
		var insufficient *ledger.InsufficientTokensError
		if errors.As(err, &insufficient) {
			_, _ = cq.Answer(b, &tgbotapi.AnswerCallbackQueryOpts{Text: "Not enough tokens for a reading.", ShowAlert: true})
			return nil
		}
		return fmt.Errorf("horoscope plugin: consume: %w", err)
	}

	_, _ = cq.Answer(b, nil)
	text := renderReading(sign)
	_, err := b.SendMessage(cq.From.Id, text, nil)
	if err != nil {
		return err
	}

	sub := &subscription{TelegramID: cq.From.Id, ChatID: cq.From.Id, Sign: sign, Active: true}
	return p.saveSubscription(context.Background(), sub)
}

// renderReading is a deterministic stand-in for the original's OpenAI call:
// the spec's Non-goals exclude generation content, only the plugin wiring
// is in scope.
func renderReading(sign string) string {
	return fmt.Sprintf("Today's reading for %s: focus on what you can control, the rest will follow.", capitalize(sign))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (p *Plugin) loadSubscription(ctx context.Context, telegramID int64) (*subscription, bool, error) {
	key := fmt.Sprintf("%s:%d", stateKeySub, telegramID)
	value, found, err := p.state.Get(ctx, p.botID, "horoscope", key)
	if err != nil || !found {
		return nil, found, err
	}
	// The store decodes the document into a generic BSON value, not the
	// *subscription that saveSubscription wrote, so decode it again here.
	raw, err := bson.Marshal(value)
	if err != nil {
		return nil, false, nil
	}
	sub := &subscription{}
	if err := bson.Unmarshal(raw, sub); err != nil {
		return nil, false, nil
	}
	return sub, true, nil
}

func (p *Plugin) saveSubscription(ctx context.Context, sub *subscription) error {
	key := fmt.Sprintf("%s:%d", stateKeySub, sub.TelegramID)
	return p.state.Set(ctx, &entity.PluginState{BotID: p.botID, PluginName: "horoscope", StateKey: key, Value: sub})
}

// runScheduler wakes hourly and, at deliveryClock, runs deliverAll, which
// sends a reading to every subscription allActiveSubscriptions returns and
// deactivates any whose delivery comes back WireForbidden (the user blocked
// the bot), per spec.md §7. allActiveSubscriptions returns none, so no
// reading is sent.
func (p *Plugin) runScheduler() {
	defer close(p.done)
	ticker := time.NewTicker(deliveryTick)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if now.Hour() == deliveryClock {
				p.deliverAll()
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *Plugin) deliverAll() {
	subs, err := p.allActiveSubscriptions(context.Background())
	if err != nil {
		p.log.With(sl.Err(err)).Warn("horoscope: scheduled delivery listing failed")
		return
	}
	if len(subs) == 0 {
		return
	}
	client, err := p.clients.GetClient(p.botID)
	if err != nil {
		p.log.With(sl.BotID(p.botID), sl.Err(err)).Warn("horoscope: bot client unavailable for scheduled delivery")
		return
	}
	for _, sub := range subs {
		text := renderReading(sub.Sign)
		_, err := client.SendMessage(context.Background(), sub.ChatID, text, nil)
		var forbidden *tg.WireForbiddenError
		if errors.As(err, &forbidden) {
			sub.Active = false
			_ = p.saveSubscription(context.Background(), sub)
			continue
		}
		if err != nil {
			p.log.With(sl.BotID(p.botID), sl.Err(err)).Warn("horoscope: scheduled delivery failed")
		}
	}
}

// allActiveSubscriptions always returns an empty list: repo.PluginStateRepo
// has no query that lists a plugin's documents, so deliverAll finds no
// subscribers.
func (p *Plugin) allActiveSubscriptions(_ context.Context) ([]*subscription, error) {
	return nil, nil
}

func signKeyboard() tgbotapi.InlineKeyboardMarkup {
	signs := entity.ZodiacSigns()
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(signs); i += 3 {
		end := i + 3
		if end > len(signs) {
			end = len(signs)
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, sign := range signs[i:end] {
			row = append(row, tgbotapi.InlineKeyboardButton{
				Text:         capitalize(sign),
				CallbackData: cbSign + sign,
			})
		}
		rows = append(rows, row)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}
