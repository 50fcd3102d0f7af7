// Package reload implements the hot-reload controller from spec.md §4.7:
// it watches the config and plugins directories, debounces filesystem
// events with a mutex-swap batching pattern grounded on the teacher's
// bot/digest.go DigestBuffer ticker idiom, and routes settled batches to
// config or plugin reloads.
package reload

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"multibot/entity"
	"multibot/internal/botmgr"
	"multibot/internal/config"
	"multibot/internal/plugin/loader"
	"multibot/lib/sl"
)

// DefaultDebounce is the settle window spec.md §4.7 calls "≈ 1.6s".
const DefaultDebounce = 1600 * time.Millisecond

// Controller watches ConfigDir and PluginsDir for changes and drives the
// bot manager's reload path. Construct with New, then run Start in its own
// goroutine; Stop waits for that goroutine to exit.
type Controller struct {
	configDir  string
	pluginsDir string
	debounce   time.Duration

	bots   *botmgr.Manager
	loader *loader.Loader
	log    *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{} // settled path -> struct{}

	stopCh chan struct{}
	done   chan struct{}
}

func New(configDir, pluginsDir string, bots *botmgr.Manager, ld *loader.Loader, log *slog.Logger) (*Controller, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{configDir, pluginsDir} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			log.With(sl.Err(err), slog.String("dir", dir)).Warn("reload: cannot watch directory")
		}
	}

	return &Controller{
		configDir:  configDir,
		pluginsDir: pluginsDir,
		debounce:   DefaultDebounce,
		bots:       bots,
		loader:     ld,
		log:        log.With(sl.Module("reload")),
		watcher:    watcher,
		pending:    make(map[string]struct{}),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start runs the watch loop until Stop is called. Meant to be launched with
// `go ctrl.Start()`.
func (c *Controller) Start() {
	defer close(c.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ignoreEvent(event) {
				continue
			}
			c.mu.Lock()
			c.pending[event.Name] = struct{}{}
			c.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(c.debounce)
			timerC = timer.C

		case <-timerC:
			c.settle()
			timerC = nil

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.With(sl.Err(err)).Warn("reload: watcher error")

		case <-c.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Stop ends the watch loop and closes the underlying fsnotify watcher.
func (c *Controller) Stop() {
	close(c.stopCh)
	<-c.done
	_ = c.watcher.Close()
}

// ignoreEvent drops hidden and backup files per spec.md §4.7.
func ignoreEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return true
	}
	return event.Op == fsnotify.Chmod
}

// settle atomically swaps out the pending path set and routes each one,
// the same mutex-swap-then-drain shape as DigestBuffer.Flush.
func (c *Controller) settle() {
	c.mu.Lock()
	batch := c.pending
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	for path := range batch {
		c.route(path)
	}
}

func (c *Controller) route(path string) {
	ext := strings.ToLower(filepath.Ext(path))
	dir := filepath.Dir(path)

	switch {
	case (ext == ".yaml" || ext == ".yml") && sameDir(dir, c.configDir):
		c.onConfigChange(path)
	case ext == ".so" && sameDir(dir, c.pluginsDir) && !strings.HasPrefix(filepath.Base(path), "_"):
		c.onPluginChange(path)
	}
}

func sameDir(a, b string) bool {
	if b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}

// onConfigChange reloads a bot's YAML and calls reload_bot, which is
// idempotent under the state machine per spec.md §3.
func (c *Controller) onConfigChange(path string) {
	id := config.BotIDFromFilename(path)
	log := c.log.With(sl.BotID(id), slog.String("path", path))

	cfg, err := config.LoadBotConfig(path)
	if err != nil {
		log.With(sl.Err(err)).Warn("reload: config reload failed")
		return
	}

	if _, statErr := c.bots.Status(id); statErr != nil {
		if createErr := c.bots.CreateBot(context.Background(), cfg); createErr != nil {
			log.With(sl.Err(createErr)).Warn("reload: create failed")
			return
		}
		if cfg.Enabled {
			if startErr := c.bots.StartBot(context.Background(), id); startErr != nil {
				log.With(sl.Err(startErr)).Warn("reload: start failed")
			}
		}
		return
	}

	if err := c.bots.ReloadBot(context.Background(), id, cfg); err != nil {
		log.With(sl.Err(err)).Warn("reload: reload_bot failed")
		return
	}
	log.Info("reload: config change applied")
}

// onPluginChange reloads the plugin module via the loader, then rebuilds
// every managed bot that lists the plugin, per spec.md §4.7.
func (c *Controller) onPluginChange(path string) {
	name := strings.TrimSuffix(filepath.Base(path), ".so")
	log := c.log.With(sl.PluginName(name), slog.String("path", path))

	if _, err := c.loader.Reload(name); err != nil {
		log.With(sl.Err(err)).Warn("reload: plugin reload failed")
		return
	}

	for id, cfg := range c.bots.Configs() {
		if !listsPlugin(cfg, name) {
			continue
		}
		if err := c.bots.ReloadBot(context.Background(), id, cfg); err != nil {
			log.With(sl.BotID(id), sl.Err(err)).Warn("reload: rebuild after plugin change failed")
		}
	}
	log.Info("reload: plugin change applied")
}

func listsPlugin(cfg *entity.BotConfig, name string) bool {
	for _, ref := range cfg.Plugins {
		if ref.Name == name && ref.Enabled {
			return true
		}
	}
	return false
}
