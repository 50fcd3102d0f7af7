package botmgr

import (
	"context"
	"log/slog"
	"testing"

	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/entity"
)

type stubFactory struct {
	failBuild bool
}

func (f *stubFactory) Build(_ context.Context, _ *entity.BotConfig) (*ext.Dispatcher, error) {
	if f.failBuild {
		return nil, assert.AnError
	}
	return ext.NewDispatcher(&ext.DispatcherOpts{}), nil
}

func newTestManager(factory DispatcherFactory) *Manager {
	return New(factory, slog.New(slog.DiscardHandler))
}

func webhookConfig(id string) *entity.BotConfig {
	return &entity.BotConfig{ID: id, Token: "test-token", Mode: entity.ModeWebhook, Enabled: true}
}

func TestCreateBot_DuplicateIDFails(t *testing.T) {
	m := newTestManager(&stubFactory{})
	ctx := context.Background()

	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))
	err := m.CreateBot(ctx, webhookConfig("a"))
	var dupErr *BotAlreadyExistsError
	assert.ErrorAs(t, err, &dupErr)
}

func TestStartBot_WebhookModeTransitionsToRunning(t *testing.T) {
	m := newTestManager(&stubFactory{})
	ctx := context.Background()
	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))

	require.NoError(t, m.StartBot(ctx, "a"))

	status, err := m.Status("a")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)
	assert.NotNil(t, status.StartedAt)
}

func TestStartBot_AlreadyRunningFails(t *testing.T) {
	m := newTestManager(&stubFactory{})
	ctx := context.Background()
	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))
	require.NoError(t, m.StartBot(ctx, "a"))

	err := m.StartBot(ctx, "a")
	var alreadyErr *BotAlreadyRunningError
	assert.ErrorAs(t, err, &alreadyErr)
}

func TestStopBot_NotRunningFails(t *testing.T) {
	m := newTestManager(&stubFactory{})
	ctx := context.Background()
	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))

	err := m.StopBot(ctx, "a")
	var notRunning *BotNotRunningError
	assert.ErrorAs(t, err, &notRunning)
}

func TestStartBot_BuildFailureEntersErrorState(t *testing.T) {
	m := newTestManager(&stubFactory{failBuild: true})
	ctx := context.Background()
	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))

	err := m.StartBot(ctx, "a")
	require.Error(t, err)

	status, err := m.Status("a")
	require.NoError(t, err)
	assert.Equal(t, StateError, status.State)
	assert.NotEmpty(t, status.ErrorMessage)
}

func TestStartStop_RoundTrip(t *testing.T) {
	m := newTestManager(&stubFactory{})
	ctx := context.Background()
	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))

	require.NoError(t, m.StartBot(ctx, "a"))
	require.NoError(t, m.StopBot(ctx, "a"))

	status, err := m.Status("a")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, status.State)
	assert.Nil(t, status.StartedAt)
}

func TestShutdown_StopsAllRunningBots(t *testing.T) {
	m := newTestManager(&stubFactory{})
	ctx := context.Background()
	require.NoError(t, m.CreateBot(ctx, webhookConfig("a")))
	require.NoError(t, m.CreateBot(ctx, webhookConfig("b")))
	require.NoError(t, m.StartBot(ctx, "a"))
	require.NoError(t, m.StartBot(ctx, "b"))

	m.Shutdown(ctx)

	for _, id := range []string{"a", "b"} {
		status, err := m.Status(id)
		require.NoError(t, err)
		assert.Equal(t, StateStopped, status.State)
	}
}
