// Package config loads the process-wide configuration via cleanenv and the
// per-bot YAML configuration files consumed by the rest of the supervisor.
package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the process-level configuration: everything that is not
// specific to a single bot. Sourced from environment variables only —
// there is no process-level YAML file, matching §6's "Environment" list.
type Config struct {
	Env       string `env:"ENV" env-default:"local"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`
	LogDir    string `env:"LOG_DIR" env-default:"/var/log/multibot"`

	DatabaseURL      string `env:"DATABASE_URL" env-required:"true"`
	DatabasePoolSize int    `env:"DATABASE_POOL_SIZE" env-default:"10"`

	MongoURI      string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	MongoDatabase string `env:"MONGO_DATABASE" env-default:"multibot"`

	RedisAddr   string `env:"REDIS_ADDR" env-default:""`
	FSMStrategy string `env:"FSM_STRATEGY" env-default:"memory"`

	FreeTokens int64 `env:"FREE_TOKENS" env-default:"20"`

	HealthCheckEnabled bool   `env:"HEALTH_CHECK_ENABLED" env-default:"true"`
	HealthCheckHost    string `env:"HEALTH_CHECK_HOST" env-default:"0.0.0.0"`
	HealthCheckPort    string `env:"HEALTH_CHECK_PORT" env-default:"8090"`

	WebhookEnabled bool   `env:"WEBHOOK_ENABLED" env-default:"false"`
	WebhookBaseURL string `env:"WEBHOOK_BASE_URL" env-default:""`
	WebhookHost    string `env:"WEBHOOK_HOST" env-default:"0.0.0.0"`
	WebhookPort    string `env:"WEBHOOK_PORT" env-default:"8443"`
	WebhookSecret  string `env:"WEBHOOK_SECRET" env-default:""`
	WebhookPrefix  string `env:"WEBHOOK_PREFIX" env-default:"webhook"`

	EnableHotReload bool   `env:"ENABLE_HOT_RELOAD" env-default:"true"`
	ConfigDir       string `env:"CONFIG_DIR" env-default:"./config/bots"`
	PluginsDir      string `env:"PLUGINS_DIR" env-default:"./plugins"`

	AdminBotToken     string `env:"ADMIN_BOT_TOKEN" env-default:""`
	AdminAllowedUsers string `env:"ADMIN_ALLOWED_USERS" env-default:""`

	StripeAPIKey        string `env:"STRIPE_API_KEY" env-default:""`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET" env-default:""`
	StripeWebhookHost   string `env:"STRIPE_WEBHOOK_HOST" env-default:"0.0.0.0"`
	StripeWebhookPort   string `env:"STRIPE_WEBHOOK_PORT" env-default:"8444"`

	StatsFlushIntervalSec int `env:"STATS_FLUSH_INTERVAL_SECONDS" env-default:"60"`
}

// AdminAllowedUserIDs parses the comma-separated ADMIN_ALLOWED_USERS list,
// silently skipping entries that don't parse as an int64 Telegram user id.
func (c *Config) AdminAllowedUserIDs() []int64 {
	if c.AdminAllowedUsers == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(c.AdminAllowedUsers, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

var (
	instance *Config
	once     sync.Once
)

// MustLoad reads the process configuration from the environment, exactly
// once per process, the way the teacher's internal/config.MustLoad reads
// the YAML file once via sync.Once.
func MustLoad() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := cleanenv.ReadEnv(instance); err != nil {
			desc, _ := cleanenv.GetDescription(instance, nil)
			log.Fatal(fmt.Errorf("config: %w; %s", err, desc))
		}
	})
	return instance
}
