// Package billing implements the billing UI plugin: /balance and /buy,
// a package-selection keyboard, and the callback that starts a Stripe
// Checkout Session — grounded on the teacher's bot/callbacks.go keyboard
// and callback-query idiom, wired to internal/billing and internal/ledger.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"

	"multibot/internal/billing"
	"multibot/internal/ledger"
	"multibot/internal/plugin"
)

const cbBuyPackage = "buy:"

type Class struct {
	// Billing and Ledger are injected by the dispatcher factory at plugin
	// construction time: this plugin has no standalone config of its own.
	Billing *billing.Service
	Ledger  *ledger.Ledger
}

func (Class) Name() string               { return "billing" }
func (Class) Version() string            { return "1.0.0" }
func (Class) Dependencies() []string     { return nil }
func (Class) SupportsHotReload() bool    { return true }
func (c Class) New(config map[string]any) plugin.Plugin {
	return &Plugin{billing: c.Billing, ledger: c.Ledger}
}

type Plugin struct {
	botID   string
	log     *slog.Logger
	billing *billing.Service
	ledger  *ledger.Ledger
}

func (p *Plugin) Setup(_ context.Context, botID string, log *slog.Logger) error {
	p.botID = botID
	p.log = log
	return nil
}

func (p *Plugin) Shutdown(_ context.Context) error { return nil }

func (p *Plugin) Register(r *plugin.Router) {
	r.Command("balance", p.balance)
	r.Command("buy", p.buy)
	r.Add(handlers.NewCallback(callbackquery.Prefix(cbBuyPackage), p.onBuyCallback))
}

func (p *Plugin) balance(b *tgbotapi.Bot, ctx *ext.Context) error {
	userID := ctx.EffectiveUser.Id
	bal, err := p.ledger.Balance(context.Background(), userID, p.botID)
	if err != nil {
		return fmt.Errorf("billing plugin: balance: %w", err)
	}
	text := fmt.Sprintf("Balance: %d tokens", bal.Balance)
	_, err = b.SendMessage(ctx.EffectiveChat.Id, text, nil)
	return err
}

func (p *Plugin) buy(b *tgbotapi.Bot, ctx *ext.Context) error {
	packages := p.billing.Packages()
	if len(packages) == 0 {
		_, err := b.SendMessage(ctx.EffectiveChat.Id, "No token packages are configured right now.", nil)
		return err
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, pkg := range packages {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			{
				Text:         fmt.Sprintf("%s — %d tokens", pkg.Label, pkg.Tokens),
				CallbackData: cbBuyPackage + pkg.ID,
			},
		})
	}

	_, err := b.SendMessage(ctx.EffectiveChat.Id, "Choose a package:", &tgbotapi.SendMessageOpts{
		ReplyMarkup: tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	return err
}

func (p *Plugin) onBuyCallback(b *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.CallbackQuery
	packageID := strings.TrimPrefix(cq.Data, cbBuyPackage)

	url, err := p.billing.CreateCheckout(context.Background(), cq.From.Id, p.botID, packageID, "", "")
	if err != nil {
		_, _ = cq.Answer(b, &tgbotapi.AnswerCallbackQueryOpts{Text: "Could not start checkout", ShowAlert: true})
		return fmt.Errorf("billing plugin: create checkout: %w", err)
	}

	_, _ = cq.Answer(b, &tgbotapi.AnswerCallbackQueryOpts{Text: "Opening checkout..."})
	_, err = b.SendMessage(cq.From.Id, "Complete your purchase: "+url, nil)
	return err
}
