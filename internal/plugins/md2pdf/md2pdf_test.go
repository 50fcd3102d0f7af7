package md2pdf

import (
	"context"
	"strings"
	"testing"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/internal/fsm"
	"multibot/internal/plugin"
)

func TestInlineRenderer_WrapsMarkdownInPDFContainer(t *testing.T) {
	out, err := InlineRenderer{}.Render("# hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "%PDF-1.4"))
	assert.Contains(t, string(out), "# hello")
}

func TestClass_NewDefaultsToInlineRenderer(t *testing.T) {
	c := Class{}
	p := c.New(nil).(*Plugin)
	assert.IsType(t, InlineRenderer{}, p.renderer)
}

func TestClass_NewKeepsInjectedRenderer(t *testing.T) {
	renderer := fakeRenderer{}
	c := Class{Renderer: renderer}
	p := c.New(nil).(*Plugin)
	assert.Equal(t, renderer, p.renderer)
}

func TestOnText_IgnoresMessageWithoutArmedConversation(t *testing.T) {
	store := fsm.NewMemoryStore()
	c := Class{FSM: store}
	p := c.New(nil).(*Plugin)
	p.botID = "bot-a"

	// No conversation is armed and no ledger is wired: onText has to return
	// before it would reach the ledger or the bot.
	ctx := &ext.Context{
		EffectiveUser:    &tgbotapi.User{Id: 1},
		EffectiveChat:    &tgbotapi.Chat{Id: 1},
		EffectiveMessage: &tgbotapi.Message{Text: "# hello"},
	}
	require.NoError(t, p.onText(nil, ctx))

	_, waiting, err := store.Get(context.Background(), "bot-a", 1)
	require.NoError(t, err)
	assert.False(t, waiting)
}

func TestClass_NewUsesInjectedConversationStore(t *testing.T) {
	store := fsm.NewMemoryStore()
	c := Class{FSM: store}
	p := c.New(nil).(*Plugin)
	p.botID = "bot-a"

	require.NoError(t, p.conversations.Set(context.Background(), p.botID, 1, fsm.State{Step: stepAwaitingMarkdown}, 0))
	state, waiting, err := store.Get(context.Background(), "bot-a", 1)
	require.NoError(t, err)
	require.True(t, waiting)
	assert.Equal(t, stepAwaitingMarkdown, state.Step)
}

type fakeRenderer struct{}

func (fakeRenderer) Render(markdown string) ([]byte, error) { return []byte(markdown), nil }

var _ plugin.Class = Class{}
