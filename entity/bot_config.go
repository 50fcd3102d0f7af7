// Package entity defines the persistent and configuration-level types
// shared across the supervisor: bot configuration, plugin scratch state,
// hourly statistics buckets, and the token ledger's row types.
package entity

import "multibot/lib/validate"

// Mode is the transport a bot receives updates through.
type Mode string

const (
	ModePolling Mode = "polling"
	ModeWebhook Mode = "webhook"
)

// PluginRef is one entry of a BotConfig's ordered plugin list.
type PluginRef struct {
	Name    string         `yaml:"name" validate:"required"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// Webhook holds the inbound-HTTP configuration for a bot running in
// ModeWebhook.
type Webhook struct {
	Path           string `yaml:"path"`
	Secret         string `yaml:"secret"`
	MaxConnections int    `yaml:"max_connections"`
}

// Access lists partition Telegram user ids into allow/deny/admin sets.
// Empty Allowed means "everyone not blocked may use the bot".
type Access struct {
	Allowed []int64 `yaml:"allowed_users"`
	Blocked []int64 `yaml:"blocked_users"`
	Admin   []int64 `yaml:"admin_users"`
}

func (a Access) IsAdmin(userID int64) bool {
	for _, id := range a.Admin {
		if id == userID {
			return true
		}
	}
	return false
}

func (a Access) IsBlocked(userID int64) bool {
	for _, id := range a.Blocked {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAllowed reports whether userID may interact with the bot: not blocked,
// and either the allow-list is empty or the id is in it (admins always pass).
func (a Access) IsAllowed(userID int64) bool {
	if a.IsBlocked(userID) {
		return false
	}
	if a.IsAdmin(userID) {
		return true
	}
	if len(a.Allowed) == 0 {
		return true
	}
	for _, id := range a.Allowed {
		if id == userID {
			return true
		}
	}
	return false
}

// RateLimiting configures the per-user token bucket middleware for a bot.
type RateLimiting struct {
	Enabled     bool    `yaml:"enabled"`
	RatePerMin  float64 `yaml:"default_rate"`
	BurstSize   int     `yaml:"burst_size"`
	NotifyDrops bool    `yaml:"notify_drops"`
}

// BotConfig is the in-memory, validated form of one bot's YAML file.
// Token is the bot's Telegram API token after ${ENV_VAR} interpolation —
// it is never logged directly (see sl.Secret).
type BotConfig struct {
	ID           string            `yaml:"id" validate:"required"`
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Token        string            `yaml:"token"`
	Enabled      bool              `yaml:"enabled"`
	Mode         Mode              `yaml:"mode" validate:"omitempty,oneof=polling webhook"`
	Webhook      Webhook           `yaml:"webhook"`
	Settings     map[string]any    `yaml:"settings"`
	Plugins      []PluginRef       `yaml:"plugins"`
	Access       Access            `yaml:"access"`
	RateLimiting RateLimiting      `yaml:"rate_limiting"`
	FSMStrategy  string            `yaml:"fsm_strategy" validate:"omitempty,oneof=memory redis"`
	SourcePath   string            `yaml:"-"`
}

// Validate checks structural invariants beyond what `validate` tags express.
// Per spec.md §3, an empty Token means "skip this config" — that is not a
// validation failure, callers must check TokenMissing separately.
func (c *BotConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = ModePolling
	}
	return validate.Struct(c)
}

// TokenMissing reports whether this config should be skipped rather than
// loaded, per the invariant in spec.md §3.
func (c *BotConfig) TokenMissing() bool {
	return c.Token == ""
}

// DefaultPlugins is substituted by the dispatcher factory when a bot's YAML
// lists no plugins at all.
func DefaultPlugins() []PluginRef {
	return []PluginRef{
		{Name: "start", Enabled: true},
		{Name: "help", Enabled: true},
		{Name: "errorhandler", Enabled: true},
	}
}
