// Package dispatcher implements the dispatcher factory from spec.md §4.3:
// given a BotConfig, it resolves the bot's plugin list through the
// registry's topological sort, instantiates each plugin, and wires the
// middleware chain (logging, access, stats, session, tokens, rate limit,
// recover) around every handler a plugin registers.
package dispatcher

import (
	"context"
	"log/slog"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/entity"
	"multibot/internal/billing"
	"multibot/internal/botmgr"
	"multibot/internal/fsm"
	"multibot/internal/ledger"
	"multibot/internal/middleware"
	"multibot/internal/plugin"
	"multibot/internal/plugin/registry"
	pluginsadmin "multibot/internal/plugins/admin"
	pluginsbilling "multibot/internal/plugins/billing"
	pluginshoroscope "multibot/internal/plugins/horoscope"
	pluginsmd2pdf "multibot/internal/plugins/md2pdf"
	"multibot/internal/ratelimit"
	"multibot/internal/stats"
	"multibot/internal/store"
	"multibot/internal/store/repo"
	"multibot/internal/tg"
	"multibot/lib/sl"
)

// Factory builds a per-bot dispatcher, implementing botmgr.DispatcherFactory.
type Factory struct {
	registry    *registry.Registry
	store       *store.Store
	stats       *stats.Collector
	billing     *billing.Service
	ledger      *ledger.Ledger
	pluginState *repo.PluginStateRepo
	manager     *botmgr.Manager
	fsm         fsm.Store
	log         *slog.Logger

	// rateLimiters holds one Limiter per bot, since each bot's
	// RateLimiting config can differ; keyed by bot id.
	rateLimiters map[string]*ratelimit.Limiter
}

func New(
	reg *registry.Registry,
	st *store.Store,
	statsCollector *stats.Collector,
	billingService *billing.Service,
	led *ledger.Ledger,
	log *slog.Logger,
) *Factory {
	return &Factory{
		registry:     reg,
		store:        st,
		stats:        statsCollector,
		billing:      billingService,
		ledger:       led,
		log:          log.With(sl.Module("dispatcher")),
		rateLimiters: make(map[string]*ratelimit.Limiter),
	}
}

// SetPluginState wires the plugin-state store used by stateful plugins
// (currently horoscope).
func (f *Factory) SetPluginState(ps *repo.PluginStateRepo) {
	f.pluginState = ps
}

// SetManager wires the running *botmgr.Manager back into the factory, used
// by plugins that reach outside their own bot's handler scope: horoscope's
// scheduled delivery needs a live client by bot id, admin's fleet commands
// need to start/stop/inspect other bots. Separate from New because the
// manager is constructed with this factory as its DispatcherFactory, so the
// two objects reference each other; SetManager closes that loop after both
// exist.
func (f *Factory) SetManager(mgr *botmgr.Manager) {
	f.manager = mgr
}

// SetFSM wires the conversation-state store used by plugins that need more
// than one message to complete a flow (currently md2pdf).
func (f *Factory) SetFSM(store fsm.Store) {
	f.fsm = store
}

// Build resolves cfg's plugin list, instantiates each plugin in dependency
// order, and returns a fully wired *ext.Dispatcher. Resolution failures
// for individual plugins are logged and skipped; the factory proceeds with
// the best-effort subset per spec.md §4.3.
func (f *Factory) Build(ctx context.Context, cfg *entity.BotConfig) (*ext.Dispatcher, error) {
	refs := cfg.Plugins
	if len(refs) == 0 {
		refs = entity.DefaultPlugins()
	}

	configByName := make(map[string]map[string]any, len(refs))
	var requested []string
	for _, ref := range refs {
		if !ref.Enabled {
			continue
		}
		requested = append(requested, ref.Name)
		configByName[ref.Name] = ref.Config
	}

	ordered, err := f.registry.ResolveDependencies(requested)
	if err != nil {
		f.log.With(sl.BotID(cfg.ID), sl.Err(err)).Warn("plugin resolution failed, proceeding best-effort")
		ordered = f.bestEffortOrder(requested)
	}

	instances := f.instantiate(ctx, cfg, ordered, configByName)

	var errHandler func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction
	for _, instance := range instances {
		if handler, ok := instance.(plugin.DispatcherErrorHandler); ok {
			errHandler = handler.HandleDispatchError
			break
		}
	}
	if errHandler == nil {
		errHandler = f.defaultErrorHandler(cfg.ID)
	}

	d := tg.NewDispatcher(f.log.With(sl.BotID(cfg.ID)), errHandler)

	router := plugin.NewRouter(d, f.buildChain(cfg))
	for _, instance := range instances {
		instance.Register(router)
	}

	return d, nil
}

// instantiate constructs one Plugin instance per resolved name, running
// Setup on each; a plugin whose class is missing or whose Setup fails is
// logged and skipped rather than aborting the whole bot.
func (f *Factory) instantiate(ctx context.Context, cfg *entity.BotConfig, ordered []string, configByName map[string]map[string]any) []plugin.Plugin {
	instances := make([]plugin.Plugin, 0, len(ordered))
	for _, name := range ordered {
		class, err := f.registry.Get(name)
		if err != nil {
			f.log.With(sl.BotID(cfg.ID), slog.String("plugin", name), sl.Err(err)).Warn("plugin not found, skipping")
			continue
		}

		switch name {
		case "billing":
			class = pluginsbilling.Class{Billing: f.billing, Ledger: f.ledger}
		case "horoscope":
			class = pluginshoroscope.Class{Ledger: f.ledger, PluginState: f.pluginState, Clients: f.manager}
		case "md2pdf":
			class = pluginsmd2pdf.Class{Ledger: f.ledger, FSM: f.fsm}
		case "admin":
			class = pluginsadmin.Class{Manager: f.manager, Stats: f.stats}
		}

		instance := class.New(configByName[name])
		if err := instance.Setup(ctx, cfg.ID, f.log); err != nil {
			f.log.With(sl.BotID(cfg.ID), slog.String("plugin", name), sl.Err(err)).Warn("plugin setup failed, skipping")
			continue
		}
		instances = append(instances, instance)
	}
	return instances
}

// bestEffortOrder drops any name the registry could not resolve (unknown
// or cyclic) rather than failing the whole bot.
func (f *Factory) bestEffortOrder(requested []string) []string {
	var ok []string
	for _, name := range requested {
		if _, err := f.registry.ResolveDependencies([]string{name}); err == nil {
			ok = append(ok, name)
		} else {
			f.log.With(slog.String("plugin", name)).Warn("dropping unresolvable plugin")
		}
	}
	return ok
}

func (f *Factory) buildChain(cfg *entity.BotConfig) []plugin.Middleware {
	chain := []plugin.Middleware{
		middleware.Logging(f.log),
		middleware.Access(cfg.Access),
		middleware.Stats(cfg.ID, f.stats),
		middleware.Session(cfg.ID, f.store),
	}

	if hasBilling(cfg) {
		chain = append(chain, middleware.Tokens(cfg.ID, f.ledger))
	}

	if cfg.RateLimiting.Enabled {
		limiter := ratelimit.New(cfg.RateLimiting.RatePerMin, cfg.RateLimiting.BurstSize)
		f.rateLimiters[cfg.ID] = limiter
		chain = append(chain, middleware.RateLimit(limiter, cfg.RateLimiting.NotifyDrops))
	}

	chain = append(chain, middleware.Recover(f.log, true))
	return chain
}

func hasBilling(cfg *entity.BotConfig) bool {
	for _, ref := range cfg.Plugins {
		if ref.Name == "billing" && ref.Enabled {
			return true
		}
	}
	return false
}

// defaultErrorHandler logs and swallows, used when no plugin supplies a
// plugin.DispatcherErrorHandler.
func (f *Factory) defaultErrorHandler(botID string) func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
	return func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
		f.log.With(sl.BotID(botID), sl.Err(err)).Error("unhandled dispatch error")
		return ext.DispatcherActionNoop
	}
}
