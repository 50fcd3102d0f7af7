// Command multibot is the process entrypoint: it wires configuration,
// storage, the token ledger, billing, the plugin catalog, the dispatcher
// factory, and the bot manager, then discovers and starts every configured
// bot before handing control to the signal handler. Grounded on the
// teacher's cmd/server/main.go wiring order: load config, build logger,
// build dependencies bottom-up, start listeners, block on signals.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"multibot/entity"
	"multibot/internal/billing"
	"multibot/internal/botmgr"
	"multibot/internal/config"
	"multibot/internal/dispatcher"
	"multibot/internal/fsm"
	"multibot/internal/health"
	"multibot/internal/ledger"
	"multibot/internal/plugin/catalog"
	"multibot/internal/plugin/loader"
	"multibot/internal/plugin/registry"
	"multibot/internal/reload"
	"multibot/internal/signals"
	"multibot/internal/stats"
	"multibot/internal/store"
	"multibot/internal/store/repo"
	"multibot/internal/tg"
	"multibot/internal/webhook"
	"multibot/lib/logger"
	"multibot/lib/sl"
)

func main() {
	conf := config.MustLoad()
	log := logger.SetupLogger(conf.Env, conf.LogFormat, conf.LogDir)
	if notifier := newAdminNotifier(conf, log); notifier != nil {
		log = slog.New(logger.NewAdminHandler(log.Handler(), notifier, slog.LevelError))
	}
	log.Info("starting multibot", slog.String("env", conf.Env))

	st, err := store.New(conf, log)
	if err != nil {
		log.With(sl.Err(err)).Error("store: open failed")
		return
	}
	defer st.Close()

	tokensRepo := repo.NewTokensRepo(st.DB())
	transactionsRepo := repo.NewTransactionsRepo(st.DB())
	statsRepo := repo.NewStatsRepo(st.DB())
	pluginStateRepo := repo.NewPluginStateRepo(conf)
	led := ledger.New(tokensRepo, transactionsRepo, st, conf.FreeTokens)

	billingService := billing.New(conf.StripeAPIKey, conf.StripeWebhookSecret, entity.DefaultTokenPackages(), led, log)

	statsCollector := stats.New(statsRepo, time.Duration(conf.StatsFlushIntervalSec)*time.Second, log)
	statsCollector.Start()
	defer statsCollector.Stop()

	reg := registry.New(log)
	if err := catalog.RegisterBuiltins(reg); err != nil {
		log.With(sl.Err(err)).Error("catalog: register builtins failed")
		return
	}

	conversations, err := fsm.New(conf.FSMStrategy, conf.RedisAddr)
	if err != nil {
		log.With(sl.Err(err)).Error("fsm: store init failed")
		return
	}

	factory := dispatcher.New(reg, st, statsCollector, billingService, led, log)
	factory.SetPluginState(pluginStateRepo)
	factory.SetFSM(conversations)

	manager := botmgr.New(factory, log)
	factory.SetManager(manager)

	if err := discoverAndStartBots(context.Background(), conf, manager, log); err != nil {
		log.With(sl.Err(err)).Warn("startup: bot discovery reported errors")
	}

	var healthSrv *health.Server
	if conf.HealthCheckEnabled {
		healthSrv, err = health.New(conf.HealthCheckHost, conf.HealthCheckPort, st, manager, statsCollector, log)
		if err != nil {
			log.With(sl.Err(err)).Error("health: listen failed")
			return
		}
	}

	var webhookSrv *webhook.Server
	if conf.WebhookEnabled {
		webhookSrv, err = webhook.New(conf.WebhookHost, conf.WebhookPort, conf.WebhookPrefix, conf.WebhookSecret, webhook.ManagerLookup{Manager: manager}, log)
		if err != nil {
			log.With(sl.Err(err)).Error("webhook: listen failed")
			return
		}
	}

	billingWebhookSrv := startBillingWebhookServer(conf, billingService, log)

	pluginLoader := loader.New(reg, log)
	var reloadCtrl *reload.Controller
	if conf.EnableHotReload {
		reloadCtrl, err = reload.New(conf.ConfigDir, conf.PluginsDir, manager, pluginLoader, log)
		if err != nil {
			log.With(sl.Err(err)).Warn("reload: watcher setup failed, continuing without hot reload")
		} else {
			go reloadCtrl.Start()
		}
	}

	onShutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if reloadCtrl != nil {
			reloadCtrl.Stop()
		}
		if webhookSrv != nil {
			_ = webhookSrv.Shutdown(shutdownCtx)
		}
		if billingWebhookSrv != nil {
			_ = billingWebhookSrv.Shutdown(shutdownCtx)
		}
		if healthSrv != nil {
			_ = healthSrv.Shutdown(shutdownCtx)
		}
		manager.Shutdown(shutdownCtx)
		log.Info("multibot shut down cleanly")
	}

	onReload := func() {
		if err := discoverAndStartBots(context.Background(), conf, manager, log); err != nil {
			log.With(sl.Err(err)).Warn("SIGHUP rescan reported errors")
		}
	}

	signals.New(onShutdown, onReload, log).Run(context.Background())
}

// discoverAndStartBots implements the cold-start scenario: every discovered
// config with a token that passes validation becomes a managed bot
// regardless of its Enabled flag, and only those with Enabled=true are
// started. Configs with no token or that fail validation are skipped, and
// ids that are already managed are left as they are.
func discoverAndStartBots(ctx context.Context, conf *config.Config, manager *botmgr.Manager, log *slog.Logger) error {
	configs, loadErrs := config.DiscoverBotConfigs(conf.ConfigDir)
	for _, e := range loadErrs {
		log.With(sl.Err(e)).Warn("startup: bot config failed to load")
	}

	var failed []error
	for _, cfg := range configs {
		botLog := log.With(sl.BotID(cfg.ID))
		if cfg.TokenMissing() {
			botLog.Warn("startup: skipping bot with no token")
			continue
		}
		if err := cfg.Validate(); err != nil {
			botLog.With(sl.Err(err)).Warn("startup: bot config invalid, skipping")
			continue
		}

		if _, statusErr := manager.Status(cfg.ID); statusErr == nil {
			continue // already managed, SIGHUP rescan re-entering this loop
		}

		if err := manager.CreateBot(ctx, cfg); err != nil {
			botLog.With(sl.Err(err)).Warn("startup: create bot failed")
			failed = append(failed, err)
			continue
		}
		if !cfg.Enabled {
			continue
		}
		if err := manager.StartBot(ctx, cfg.ID); err != nil {
			botLog.With(sl.Err(err)).Warn("startup: start bot failed")
			failed = append(failed, err)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("startup: %d bot(s) failed to start", len(failed))
	}
	return nil
}

// startBillingWebhookServer mounts the Stripe webhook on its own listener,
// the same single-route chi.Router + http.Server shape as the teacher's
// cmd/server/main.go.
func startBillingWebhookServer(conf *config.Config, svc *billing.Service, log *slog.Logger) *http.Server {
	if conf.StripeAPIKey == "" {
		return nil
	}

	r := chi.NewRouter()
	r.Post("/webhook/stripe", svc.WebhookHandler())

	srv := &http.Server{
		Addr:         conf.StripeWebhookHost + ":" + conf.StripeWebhookPort,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting billing webhook receiver", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.With(sl.Err(err)).Error("billing webhook server error")
		}
	}()

	return srv
}

// adminNotifier delivers ERROR+ log records to a fixed set of Telegram user
// ids through a dedicated admin bot, implementing lib/logger.AdminNotifier.
type adminNotifier struct {
	client  *tg.Client
	userIDs []int64
	log     *slog.Logger
}

func newAdminNotifier(conf *config.Config, log *slog.Logger) *adminNotifier {
	if conf.AdminBotToken == "" {
		return nil
	}
	ids := conf.AdminAllowedUserIDs()
	if len(ids) == 0 {
		return nil
	}
	client, err := tg.New("admin", conf.AdminBotToken, log)
	if err != nil {
		log.With(sl.Err(err)).Warn("admin notifier: bot init failed, continuing without admin alerts")
		return nil
	}
	return &adminNotifier{client: client, userIDs: ids, log: log}
}

func (n *adminNotifier) NotifyAdmins(msg string, level slog.Level) {
	if n == nil {
		return
	}
	// Delivery runs in its own goroutine so the log call that triggered it
	// never waits on Telegram.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, id := range n.userIDs {
			if _, err := n.client.SendMessage(ctx, id, fmt.Sprintf("[%s] %s", level, msg), nil); err != nil {
				n.log.With(sl.Err(err)).Warn("admin notifier: delivery failed")
			}
		}
	}()
}
