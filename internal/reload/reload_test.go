package reload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"multibot/entity"
)

func TestListsPlugin(t *testing.T) {
	cfg := &entity.BotConfig{Plugins: []entity.PluginRef{
		{Name: "start", Enabled: true},
		{Name: "help", Enabled: false},
	}}
	assert.True(t, listsPlugin(cfg, "start"))
	assert.False(t, listsPlugin(cfg, "help"))
	assert.False(t, listsPlugin(cfg, "missing"))
}

func TestSameDir(t *testing.T) {
	assert.True(t, sameDir("./config/bots", "config/bots"))
	assert.False(t, sameDir("./config/bots", ""))
	assert.False(t, sameDir("./config/bots", "./plugins"))
}
