package middleware

import (
	"log/slog"
	"testing"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/entity"
	"multibot/internal/plugin"
)

func TestAccess_BlocksBlockedUser(t *testing.T) {
	mw := Access(entity.Access{Blocked: []int64{42}})
	var called bool
	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		called = true
		return nil
	}

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestAccess_BlocksUserNotOnNonEmptyAllowList(t *testing.T) {
	mw := Access(entity.Access{Allowed: []int64{7}})
	var called bool
	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		called = true
		return nil
	}

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestAccess_AllowsUserWithNoRestrictions(t *testing.T) {
	mw := Access(entity.Access{})
	var called bool
	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		called = true
		return nil
	}

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestCommandName_StripsSlashAndMention(t *testing.T) {
	assert.Equal(t, "start", commandName("/start"))
	assert.Equal(t, "start", commandName("/start@my_bot"))
	assert.Equal(t, "buy", commandName("/buy 3 tokens"))
}

type fakeRecorder struct {
	messages, commands, callbacks, errors int
	lastCommand                           string
	lastIsNew                             bool
}

func (f *fakeRecorder) RecordMessage(_ string, _ int64, isNew bool) {
	f.messages++
	f.lastIsNew = isNew
}
func (f *fakeRecorder) RecordCommand(_ string, _ int64, command string, isNew bool) {
	f.commands++
	f.lastCommand = command
	f.lastIsNew = isNew
}
func (f *fakeRecorder) RecordCallback(_ string, _ int64) { f.callbacks++ }
func (f *fakeRecorder) RecordError(_ string)             { f.errors++ }

func ctxWithCommand(text string) *ext.Context {
	return &ext.Context{
		EffectiveUser:    &tgbotapi.User{Id: 42},
		EffectiveMessage: &tgbotapi.Message{Text: text},
		Data:             map[string]any{keyIsNewUser: true},
	}
}

func TestStats_RecordsCommandAndNewUserFlag(t *testing.T) {
	rec := &fakeRecorder{}
	mw := Stats("bot-a", rec)

	var called bool
	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		called = true
		return nil
	}

	err := mw(next)(nil, ctxWithCommand("/start@test_bot"))
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, 1, rec.commands)
	assert.Equal(t, "start", rec.lastCommand)
	assert.True(t, rec.lastIsNew)
}

func TestStats_RecordsErrorOnFailure(t *testing.T) {
	rec := &fakeRecorder{}
	mw := Stats("bot-a", rec)

	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		return assert.AnError
	}

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.Error(t, err)
	assert.Equal(t, 1, rec.errors)
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(_ int64) bool { return f.allow }

func TestRateLimit_DropsWhenBucketEmpty(t *testing.T) {
	mw := RateLimit(&fakeLimiter{allow: false}, false)
	var called bool
	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		called = true
		return nil
	}

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.NoError(t, err)
	assert.False(t, called)
}

func TestRateLimit_AllowsWhenTokensAvailable(t *testing.T) {
	mw := RateLimit(&fakeLimiter{allow: true}, false)
	var called bool
	next := func(b *tgbotapi.Bot, ctx *ext.Context) error {
		called = true
		return nil
	}

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestRecover_TurnsPanicIntoError(t *testing.T) {
	mw := Recover(slog.New(slog.DiscardHandler), false)
	next := plugin.HandlerFunc(func(b *tgbotapi.Bot, ctx *ext.Context) error {
		panic("boom")
	})

	err := mw(next)(nil, ctxWithCommand("/start"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRecover_PassesThroughSuccess(t *testing.T) {
	mw := Recover(slog.New(slog.DiscardHandler), false)
	next := plugin.HandlerFunc(func(b *tgbotapi.Bot, ctx *ext.Context) error {
		return nil
	})

	err := mw(next)(nil, ctxWithCommand("/start"))
	assert.NoError(t, err)
}
