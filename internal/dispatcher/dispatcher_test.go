package dispatcher

import (
	"context"
	"log/slog"
	"testing"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/entity"
	"multibot/internal/plugin"
	"multibot/internal/plugin/registry"
)

type stubPlugin struct {
	name string
	reg  *plugin.Router
}

func (p *stubPlugin) Register(r *plugin.Router)                              { p.reg = r }
func (p *stubPlugin) Setup(_ context.Context, _ string, _ *slog.Logger) error { return nil }
func (p *stubPlugin) Shutdown(_ context.Context) error                       { return nil }

type stubClass struct {
	name string
	deps []string
}

func (c stubClass) Name() string             { return c.name }
func (c stubClass) Version() string          { return "1.0.0" }
func (c stubClass) Dependencies() []string   { return c.deps }
func (c stubClass) SupportsHotReload() bool  { return true }
func (c stubClass) New(_ map[string]any) plugin.Plugin {
	return &stubPlugin{name: c.name}
}

type failingSetupPlugin struct{ stubPlugin }

func (p *failingSetupPlugin) Setup(_ context.Context, _ string, _ *slog.Logger) error {
	return assert.AnError
}

type failingSetupClass struct{ stubClass }

func (c failingSetupClass) New(_ map[string]any) plugin.Plugin {
	return &failingSetupPlugin{stubPlugin{name: c.name}}
}

type errorHandlerPlugin struct {
	stubPlugin
	called bool
}

func (p *errorHandlerPlugin) HandleDispatchError(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
	p.called = true
	return ext.DispatcherActionNoop
}

type errorHandlerClass struct{ stubClass }

func (c errorHandlerClass) New(_ map[string]any) plugin.Plugin {
	return &errorHandlerPlugin{stubPlugin: stubPlugin{name: c.name}}
}

func newTestFactory(t *testing.T, classes ...plugin.Class) *Factory {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	reg := registry.New(log)
	for _, c := range classes {
		require.NoError(t, reg.Register(c))
	}
	return New(reg, nil, nil, nil, nil, log)
}

func testConfig(refs ...entity.PluginRef) *entity.BotConfig {
	return &entity.BotConfig{ID: "bot-a", Token: "test-token", Plugins: refs}
}

func TestBuild_InstantiatesAndRegistersResolvedPlugins(t *testing.T) {
	f := newTestFactory(t, stubClass{name: "start"}, stubClass{name: "help"})
	cfg := testConfig(
		entity.PluginRef{Name: "start", Enabled: true},
		entity.PluginRef{Name: "help", Enabled: true},
	)

	d, err := f.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestBuild_SkipsPluginWithFailingSetup(t *testing.T) {
	f := newTestFactory(t, failingSetupClass{stubClass{name: "broken"}}, stubClass{name: "start"})
	cfg := testConfig(
		entity.PluginRef{Name: "broken", Enabled: true},
		entity.PluginRef{Name: "start", Enabled: true},
	)

	d, err := f.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestBuild_DropsUnresolvableDependencyBestEffort(t *testing.T) {
	f := newTestFactory(t, stubClass{name: "start"})
	cfg := testConfig(
		entity.PluginRef{Name: "start", Enabled: true},
		entity.PluginRef{Name: "missing", Enabled: true},
	)

	d, err := f.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestBuild_SucceedsWithErrorHandlerPlugin(t *testing.T) {
	f := newTestFactory(t, errorHandlerClass{stubClass{name: "errhandler"}})
	cfg := testConfig(entity.PluginRef{Name: "errhandler", Enabled: true})

	d, err := f.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestBuild_DefaultsPluginsWhenCfgListEmpty(t *testing.T) {
	f := newTestFactory(t, stubClass{name: "start"}, stubClass{name: "help"}, stubClass{name: "errorhandler"})
	cfg := &entity.BotConfig{ID: "bot-a", Token: "test-token"}

	d, err := f.Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestHasBilling(t *testing.T) {
	cfg := testConfig(entity.PluginRef{Name: "billing", Enabled: true})
	assert.True(t, hasBilling(cfg))

	cfg2 := testConfig(entity.PluginRef{Name: "billing", Enabled: false})
	assert.False(t, hasBilling(cfg2))
}
