// Package tg wraps the Telegram Bot API client: update polling, the
// dispatcher's error callback, and outbound-call flood control, grounded on the
// teacher's bot/tgbot.go NewBot/StartPolling idiom.
package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"golang.org/x/time/rate"

	"multibot/lib/sl"
)

// Client wraps a single bot's *gotgbot.Bot with an outbound flood-control
// limiter. Telegram's documented baseline of ~30 messages/second across a
// bot's whole fleet of chats is modeled with golang.org/x/time/rate, kept
// deliberately separate from internal/ratelimit's per-user inbound bucket:
// this one throttles what the supervisor sends, not what it accepts.
type Client struct {
	Bot     *tgbotapi.Bot
	BotID   string
	limiter *rate.Limiter
	log     *slog.Logger
}

// New constructs a Client for the given API token.
func New(botID, token string, log *slog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBot(token, nil)
	if err != nil {
		return nil, fmt.Errorf("tg: new bot: %w", err)
	}
	return &Client{
		Bot:     bot,
		BotID:   botID,
		limiter: rate.NewLimiter(rate.Limit(30), 30),
		log:     log.With(sl.Module("tg"), sl.BotID(botID)),
	}, nil
}

// SendMessage waits for outbound flood-control headroom, then sends,
// translating gotgbot's API errors into the supervisor's typed wire
// errors.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *tgbotapi.SendMessageOpts) (*tgbotapi.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("tg: flood control wait: %w", err)
	}

	msg, err := c.Bot.SendMessage(chatID, text, opts)
	if err != nil {
		return nil, c.classify(ctx, "SendMessage", chatID, err)
	}
	return msg, nil
}

func (c *Client) classify(ctx context.Context, op string, chatID int64, err error) error {
	var tgErr *tgbotapi.TgError
	if errors.As(err, &tgErr) {
		switch tgErr.Code {
		case 403:
			return &WireForbiddenError{TelegramID: chatID}
		case 429:
			retryAfter := time.Duration(tgErr.ResponseParams.RetryAfter) * time.Second
			return &WireRateLimitedError{RetryAfter: retryAfter}
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &WireTimeoutError{Op: op}
	}
	return fmt.Errorf("tg: %s: %w", op, err)
}

// NewDispatcher builds a gotgbot dispatcher with the supervisor's default
// error callback, overridden by errHandler when non-nil (the errorhandler
// plugin supplies one per bot).
func NewDispatcher(log *slog.Logger, errHandler func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction) *ext.Dispatcher {
	if errHandler == nil {
		errHandler = func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			log.Error("unhandled dispatch error", sl.Err(err))
			return ext.DispatcherActionNoop
		}
	}
	return ext.NewDispatcher(&ext.DispatcherOpts{
		Error:       errHandler,
		MaxRoutines: ext.DefaultMaxRoutines,
	})
}

// StartPolling begins long-polling for updates, returning the *ext.Updater
// so the caller (the bot manager) owns its lifecycle and can Stop it.
func StartPolling(bot *tgbotapi.Bot, dispatcher *ext.Dispatcher) (*ext.Updater, error) {
	updater := ext.NewUpdater(dispatcher, nil)
	err := updater.StartPolling(bot, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: 10 * time.Second,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tg: start polling: %w", err)
	}
	return updater, nil
}
