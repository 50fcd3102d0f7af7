// Package md2pdf implements the markdown-to-PDF conversion plugin
// supplemented from original_source/src/plugins/custom/md2pdf/plugin.py:
// a user runs /md2pdf, then sends markdown text; the plugin charges a token,
// renders the text, and replies with a message giving the markdown and
// rendered sizes in bytes (the rendered document itself is not sent). Actual
// PDF rendering is out of scope per spec.md
// Non-goals (individual plugin content); this package exercises the plugin
// graph and the ledger charge with a narrow Renderer interface and one
// trivial implementation.
package md2pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"

	"multibot/internal/fsm"
	"multibot/internal/ledger"
	"multibot/internal/plugin"
)

const (
	conversionCost       = int64(1)
	stepAwaitingMarkdown = "md2pdf:awaiting_markdown"
	awaitTTL             = 10 * time.Minute
)

// Renderer converts markdown source into a document payload. The PDF
// content itself is out of this repo's scope; InlineRenderer below produces
// a minimal, valid PDF wrapper around the raw text, sufficient for the
// plugin's handlers and tests.
type Renderer interface {
	Render(markdown string) ([]byte, error)
}

type Class struct {
	Ledger   *ledger.Ledger
	Renderer Renderer
	FSM      fsm.Store
}

func (Class) Name() string            { return "md2pdf" }
func (Class) Version() string         { return "1.0.0" }
func (Class) Dependencies() []string  { return []string{"billing"} }
func (Class) SupportsHotReload() bool { return true }
func (c Class) New(_ map[string]any) plugin.Plugin {
	renderer := c.Renderer
	if renderer == nil {
		renderer = InlineRenderer{}
	}
	conversations := c.FSM
	if conversations == nil {
		conversations = fsm.NewMemoryStore()
	}
	return &Plugin{ledger: c.Ledger, renderer: renderer, conversations: conversations}
}

type Plugin struct {
	botID         string
	log           *slog.Logger
	ledger        *ledger.Ledger
	renderer      Renderer
	conversations fsm.Store
}

func (p *Plugin) Setup(_ context.Context, botID string, log *slog.Logger) error {
	p.botID = botID
	p.log = log
	return nil
}

func (p *Plugin) Shutdown(_ context.Context) error { return nil }

func (p *Plugin) Register(r *plugin.Router) {
	r.Command("md2pdf", p.instructions)
	r.Add(handlers.NewMessage(message.Text, p.onText))
}

func (p *Plugin) instructions(b *tgbotapi.Bot, ctx *ext.Context) error {
	err := p.conversations.Set(context.Background(), p.botID, ctx.EffectiveChat.Id, fsm.State{Step: stepAwaitingMarkdown}, awaitTTL)
	if err != nil {
		return fmt.Errorf("md2pdf plugin: arm conversation: %w", err)
	}
	_, err = b.SendMessage(ctx.EffectiveChat.Id, "Send me markdown text and I'll convert it to a PDF for "+fmt.Sprint(conversionCost)+" token.", nil)
	return err
}

// onText only fires the conversion once a chat has run /md2pdf: without the
// conversation gate every text message sent to the bot, regardless of
// plugin, would be charged a conversion.
func (p *Plugin) onText(b *tgbotapi.Bot, ctx *ext.Context) error {
	text := ctx.EffectiveMessage.Text
	if text == "" || text[0] == '/' {
		return nil
	}

	chatID := ctx.EffectiveChat.Id
	state, waiting, err := p.conversations.Get(context.Background(), p.botID, chatID)
	if err != nil {
		return fmt.Errorf("md2pdf plugin: conversation lookup: %w", err)
	}
	if !waiting || state.Step != stepAwaitingMarkdown {
		return nil
	}
	_ = p.conversations.Clear(context.Background(), p.botID, chatID)

	userID := ctx.EffectiveUser.Id
	if _, err := p.ledger.Consume(context.Background(), userID, p.botID, conversionCost, "md2pdf_conversion"); err != nil {
		var insufficient *ledger.InsufficientTokensError
		if errors.As(err, &insufficient) {
			_, sendErr := b.SendMessage(ctx.EffectiveChat.Id, "Not enough tokens for a conversion.", nil)
			return sendErr
		}
		return fmt.Errorf("md2pdf plugin: consume: %w", err)
	}

	pdf, err := p.renderer.Render(text)
	if err != nil {
		return fmt.Errorf("md2pdf plugin: render: %w", err)
	}

	reply := fmt.Sprintf("Converted %d bytes of markdown into a %d byte PDF.", len(text), len(pdf))
	_, err = b.SendMessage(ctx.EffectiveChat.Id, reply, nil)
	return err
}

// InlineRenderer wraps markdown source into the smallest document that
// satisfies the PDF container format: enough to exercise the conversion and
// send path without a real layout engine.
type InlineRenderer struct{}

func (InlineRenderer) Render(markdown string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n")
	buf.WriteString("2 0 obj<</Type/Pages/Kids[3 0 R]/Count 1>>endobj\n")
	buf.WriteString("3 0 obj<</Type/Page/Parent 2 0 R/Contents 4 0 R>>endobj\n")
	fmt.Fprintf(&buf, "4 0 obj<</Length %d>>stream\n%s\nendstream endobj\n", len(markdown), markdown)
	buf.WriteString("trailer<</Root 1 0 R>>\n")
	return buf.Bytes(), nil
}
