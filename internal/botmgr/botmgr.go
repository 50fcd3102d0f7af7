// Package botmgr implements the bot lifecycle manager from spec.md §4.1:
// the state machine for every managed bot and the goroutine running its
// update loop, grounded on the teacher's bot/tgbot.go TgBot.Start/Stop
// lifecycle, generalized from one bot per process to many.
package botmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/entity"
	"multibot/internal/tg"
	"multibot/lib/sl"
)

// State is one of ManagedBot's lifecycle states per spec.md §3's state
// machine diagram.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateError    State = "error"
)

// BotAlreadyRunningError is the typed error returned by start_bot on a bot
// already running, deliberately not idempotent so misconfiguration surfaces.
type BotAlreadyRunningError struct{ BotID string }

func (e *BotAlreadyRunningError) Error() string {
	return fmt.Sprintf("bot already running: %s", e.BotID)
}

// BotNotRunningError is the typed error returned by stop_bot on a bot that
// is not running.
type BotNotRunningError struct{ BotID string }

func (e *BotNotRunningError) Error() string {
	return fmt.Sprintf("bot not running: %s", e.BotID)
}

// BotAlreadyExistsError is returned by create_bot when id is already managed.
type BotAlreadyExistsError struct{ BotID string }

func (e *BotAlreadyExistsError) Error() string {
	return fmt.Sprintf("bot already exists: %s", e.BotID)
}

// ErrBotNotFound is the typed BotNotFound error kind from spec.md §7.
var ErrBotNotFound = fmt.Errorf("bot not found")

// DispatcherFactory builds the middleware chain and handler graph for a
// bot's configuration, narrowed to a local interface (matching
// internal/stats.FlushRepo's pattern) so tests can substitute a stub
// instead of a real plugin registry and store.
type DispatcherFactory interface {
	Build(ctx context.Context, cfg *entity.BotConfig) (*ext.Dispatcher, error)
}

// ManagedBot is exclusively owned by the Manager. ReloadBot keeps the same
// ManagedBot under its id and swaps its config and Telegram client in place.
type ManagedBot struct {
	mu sync.Mutex

	botID      string
	config     *entity.BotConfig
	client     *tg.Client
	dispatcher *ext.Dispatcher
	updater    *ext.Updater

	state        State
	startedAt    *time.Time
	errorMessage string
}

func (b *ManagedBot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *ManagedBot) snapshot() (State, *time.Time, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.startedAt, b.errorMessage
}

// Manager owns every ManagedBot and is the sole writer of bot lifecycle
// state, per spec.md §4.1.
type Manager struct {
	mu      sync.RWMutex
	bots    map[string]*ManagedBot
	factory DispatcherFactory
	log     *slog.Logger
}

func New(factory DispatcherFactory, log *slog.Logger) *Manager {
	return &Manager{
		bots:    make(map[string]*ManagedBot),
		factory: factory,
		log:     log.With(sl.Module("botmgr")),
	}
}

// CreateBot builds the Telegram client and handler graph for cfg and
// stores a new ManagedBot in StateStopped. Fails if id is already managed.
func (m *Manager) CreateBot(ctx context.Context, cfg *entity.BotConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bots[cfg.ID]; exists {
		return &BotAlreadyExistsError{BotID: cfg.ID}
	}

	client, err := tg.New(cfg.ID, cfg.Token, m.log)
	if err != nil {
		return fmt.Errorf("botmgr: create %s: %w", cfg.ID, err)
	}

	mb := &ManagedBot{
		botID:  cfg.ID,
		config: cfg,
		client: client,
		state:  StateStopped,
	}
	m.bots[cfg.ID] = mb
	m.log.With(sl.BotID(cfg.ID)).Info("bot created")
	return nil
}

// RemoveBot destroys a ManagedBot, stopping it first if running.
func (m *Manager) RemoveBot(ctx context.Context, id string) error {
	m.mu.Lock()
	mb, ok := m.bots[id]
	if !ok {
		m.mu.Unlock()
		return ErrBotNotFound
	}
	delete(m.bots, id)
	m.mu.Unlock()

	if mb.State() == StateRunning || mb.State() == StateStarting {
		return m.stopManaged(ctx, mb)
	}
	return nil
}

func (m *Manager) get(id string) (*ManagedBot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mb, ok := m.bots[id]
	if !ok {
		return nil, ErrBotNotFound
	}
	return mb, nil
}

// StartBot transitions stopped|error -> starting -> running. In webhook
// mode the transition to running is immediate; the external webhook
// receiver drives updates from here on. In polling mode, gotgbot's
// Updater owns its own background goroutines once StartPolling succeeds —
// there is no separate task handle to join beyond updater.Stop().
func (m *Manager) StartBot(ctx context.Context, id string) error {
	mb, err := m.get(id)
	if err != nil {
		return err
	}

	mb.mu.Lock()
	if mb.state == StateRunning || mb.state == StateStarting {
		mb.mu.Unlock()
		return &BotAlreadyRunningError{BotID: id}
	}
	mb.state = StateStarting
	mb.errorMessage = ""
	cfg := mb.config
	client := mb.client
	mb.mu.Unlock()

	dispatcher, err := m.factory.Build(ctx, cfg)
	if err != nil {
		m.fail(mb, err)
		return fmt.Errorf("botmgr: build dispatcher for %s: %w", id, err)
	}

	if cfg.Mode == entity.ModeWebhook {
		m.settle(mb, dispatcher, nil, nil)
		return nil
	}

	updater, err := tg.StartPolling(client.Bot, dispatcher)
	if err != nil {
		m.fail(mb, err)
		return fmt.Errorf("botmgr: start polling for %s: %w", id, err)
	}
	m.settle(mb, dispatcher, updater, nil)
	return nil
}

func (m *Manager) settle(mb *ManagedBot, dispatcher *ext.Dispatcher, updater *ext.Updater, failure error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if failure != nil {
		mb.state = StateError
		mb.errorMessage = failure.Error()
		return
	}
	now := time.Now()
	mb.dispatcher = dispatcher
	mb.updater = updater
	mb.state = StateRunning
	mb.startedAt = &now
}

func (m *Manager) fail(mb *ManagedBot, err error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.state = StateError
	mb.errorMessage = err.Error()
	mb.startedAt = nil
}

// StopBot transitions running|starting -> stopping -> stopped, stopping
// the Updater's polling loop if one is attached.
func (m *Manager) StopBot(ctx context.Context, id string) error {
	mb, err := m.get(id)
	if err != nil {
		return err
	}
	return m.stopManaged(ctx, mb)
}

func (m *Manager) stopManaged(ctx context.Context, mb *ManagedBot) error {
	mb.mu.Lock()
	if mb.state != StateRunning && mb.state != StateStarting {
		id := mb.botID
		mb.mu.Unlock()
		return &BotNotRunningError{BotID: id}
	}
	mb.state = StateStopping
	updater := mb.updater
	mb.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if updater != nil {
			updater.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		mb.mu.Lock()
		mb.state = StateStopped
		mb.startedAt = nil
		mb.updater = nil
		mb.mu.Unlock()
		return nil
	case <-time.After(10 * time.Second):
		m.log.With(sl.BotID(mb.botID)).Warn("stop timed out, forcing error state")
		mb.mu.Lock()
		mb.state = StateError
		mb.errorMessage = "stop timed out after 10s"
		mb.startedAt = nil
		mb.updater = nil
		mb.mu.Unlock()
		return nil
	case <-ctx.Done():
		mb.mu.Lock()
		mb.state = StateStopped
		mb.startedAt = nil
		mb.updater = nil
		mb.mu.Unlock()
		return nil
	}
}

// RestartBot is stop -> start.
func (m *Manager) RestartBot(ctx context.Context, id string) error {
	if err := m.StopBot(ctx, id); err != nil {
		var notRunning *BotNotRunningError
		if !isNotRunning(err, &notRunning) {
			return err
		}
	}
	return m.StartBot(ctx, id)
}

func isNotRunning(err error, target **BotNotRunningError) bool {
	nr, ok := err.(*BotNotRunningError)
	if ok {
		*target = nr
	}
	return ok
}

// ReloadBot rebuilds a bot under a new config: if it was running, stop,
// swap the config, and if the new config is still enabled, start again.
// If a reload races with a start, it waits for the bot to leave starting.
func (m *Manager) ReloadBot(ctx context.Context, id string, cfg *entity.BotConfig) error {
	mb, err := m.get(id)
	if err != nil {
		return err
	}

	for {
		if mb.State() != StateStarting {
			break
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	wasRunning := mb.State() == StateRunning
	if wasRunning {
		if err := m.stopManaged(ctx, mb); err != nil {
			return err
		}
	}

	newClient, err := tg.New(cfg.ID, cfg.Token, m.log)
	if err != nil {
		return fmt.Errorf("botmgr: reload %s: %w", id, err)
	}

	mb.mu.Lock()
	mb.config = cfg
	mb.client = newClient
	mb.mu.Unlock()

	if wasRunning && cfg.Enabled {
		return m.StartBot(ctx, id)
	}
	return nil
}

// Status reports a ManagedBot's current lifecycle snapshot.
type Status struct {
	BotID        string
	State        State
	StartedAt    *time.Time
	ErrorMessage string
}

func (m *Manager) Status(id string) (Status, error) {
	mb, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	state, startedAt, errMsg := mb.snapshot()
	return Status{BotID: id, State: state, StartedAt: startedAt, ErrorMessage: errMsg}, nil
}

// ListStatuses reports a snapshot of every managed bot.
func (m *Manager) ListStatuses() []Status {
	m.mu.RLock()
	ids := make([]string, 0, len(m.bots))
	for id := range m.bots {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(ids))
	for _, id := range ids {
		if st, err := m.Status(id); err == nil {
			statuses = append(statuses, st)
		}
	}
	return statuses
}

// Shutdown stops every running bot concurrently and awaits all, logging
// individual failures without letting one block the rest.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.RLock()
	bots := make([]*ManagedBot, 0, len(m.bots))
	for _, mb := range m.bots {
		bots = append(bots, mb)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, mb := range bots {
		if mb.State() != StateRunning && mb.State() != StateStarting {
			continue
		}
		wg.Add(1)
		go func(mb *ManagedBot) {
			defer wg.Done()
			if err := m.stopManaged(ctx, mb); err != nil {
				m.log.With(sl.BotID(mb.botID), sl.Err(err)).Error("shutdown: stop failed")
			}
		}(mb)
	}
	wg.Wait()
}

// Config returns the current config of a managed bot, used by the
// hot-reload controller to decide whether a plugin change affects it.
func (m *Manager) Config(id string) (*entity.BotConfig, error) {
	mb, err := m.get(id)
	if err != nil {
		return nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.config, nil
}

// Configs snapshots every managed bot's current config, keyed by id.
func (m *Manager) Configs() map[string]*entity.BotConfig {
	m.mu.RLock()
	bots := make([]*ManagedBot, 0, len(m.bots))
	for _, mb := range m.bots {
		bots = append(bots, mb)
	}
	m.mu.RUnlock()

	out := make(map[string]*entity.BotConfig, len(bots))
	for _, mb := range bots {
		mb.mu.Lock()
		out[mb.botID] = mb.config
		mb.mu.Unlock()
	}
	return out
}

// GetClient returns the Telegram client for a managed bot, used by the
// webhook receiver to route an inbound update through the right
// dispatcher in webhook mode.
func (m *Manager) GetClient(id string) (*tg.Client, error) {
	mb, err := m.get(id)
	if err != nil {
		return nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.client, nil
}

// GetDispatcher returns the bot's client and handler graph together, which
// is what the webhook receiver needs to feed one raw update through
// gotgbot's Dispatcher.ProcessUpdate.
func (m *Manager) GetDispatcher(id string) (*tg.Client, *ext.Dispatcher, error) {
	mb, err := m.get(id)
	if err != nil {
		return nil, nil, err
	}
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.dispatcher == nil {
		return nil, nil, &BotNotRunningError{BotID: id}
	}
	return mb.client, mb.dispatcher, nil
}
