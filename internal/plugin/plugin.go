// Package plugin defines the interfaces every handler module implements,
// grounded on the original BasePlugin contract and the teacher's handler
// registration style in bot/commands.go (plain functions wired onto a
// dispatcher, here generalized to a pluggable class/instance split).
package plugin

import (
	"context"
	"log/slog"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

// Class is what the registry stores: a plugin's static identity plus a
// factory for instances. It mirrors BasePlugin's class-level attributes
// (name, version, dependencies, supports_hot_reload) from the original.
type Class interface {
	Name() string
	Version() string
	Dependencies() []string
	SupportsHotReload() bool
	New(config map[string]any) Plugin
}

// Plugin is one running instance of a plugin, scoped to a single bot.
type Plugin interface {
	// Register attaches the plugin's handlers to the router. Handlers
	// registered through Router pass through the bot's middleware chain;
	// a plugin should never reach for the underlying *ext.Dispatcher
	// directly, or it bypasses logging, stats, sessions, and rate limiting.
	Register(r *Router)
	// Setup runs once after the plugin is constructed and before the bot
	// starts serving updates; it receives the owning bot's id and logger.
	Setup(ctx context.Context, botID string, log *slog.Logger) error
	// Shutdown releases whatever the instance holds. Nothing in this module
	// calls it: stopping or reloading a bot and unloading a plugin do not
	// invoke it.
	Shutdown(ctx context.Context) error
}

// HandlerFunc is the shape of a single update handler, matching gotgbot's
// own handler function signature so it can be wrapped by handlers.NewCommand
// et al. after passing through the middleware chain.
type HandlerFunc func(b *tgbotapi.Bot, ctx *ext.Context) error

// Middleware wraps a HandlerFunc with cross-cutting behavior (logging,
// stats, sessions, rate limiting, ...). The dispatcher factory composes the
// chain once per bot, outermost first, per spec.md §4.3.
type Middleware func(next HandlerFunc) HandlerFunc

// Router is the per-bot surface plugins register against. It carries the
// real *ext.Dispatcher plus the bot's already-composed middleware chain,
// so that every handler a plugin adds is automatically wrapped — this is
// the explicit decorator chain substituting for a framework-level
// middleware stack, applied at registration instead of at request time.
type Router struct {
	d     *ext.Dispatcher
	chain []Middleware
}

// NewRouter builds a Router over d with chain applied outermost-first to
// every handler registered through it.
func NewRouter(d *ext.Dispatcher, chain []Middleware) *Router {
	return &Router{d: d, chain: chain}
}

func (r *Router) wrap(fn HandlerFunc) HandlerFunc {
	wrapped := fn
	for i := len(r.chain) - 1; i >= 0; i-- {
		wrapped = r.chain[i](wrapped)
	}
	return wrapped
}

// chainedHandler wraps an ext.Handler, keeping its CheckUpdate/Name
// behavior (via embedding) but replacing HandleUpdate with the bot's
// middleware-wrapped function.
type chainedHandler struct {
	ext.Handler
	fn HandlerFunc
}

func (h *chainedHandler) HandleUpdate(b *tgbotapi.Bot, ctx *ext.Context) error {
	return h.fn(b, ctx)
}

// Add registers any gotgbot handler through the middleware chain. Plugins
// that need a callback-query or plain-message filter build the handler
// with the usual handlers.NewCallback/handlers.NewMessage and pass it here
// instead of calling the underlying dispatcher directly.
func (r *Router) Add(h ext.Handler) {
	r.d.AddHandler(&chainedHandler{Handler: h, fn: r.wrap(h.HandleUpdate)})
}

// Command registers a /command handler, wrapped by the bot's middleware chain.
func (r *Router) Command(name string, fn HandlerFunc) {
	r.Add(handlers.NewCommand(name, fn))
}

// Dispatcher exposes the underlying *ext.Dispatcher for the rare case a
// plugin needs to register something Router has no helper for; using it
// directly skips the middleware chain.
func (r *Router) Dispatcher() *ext.Dispatcher {
	return r.d
}

// DispatcherErrorHandler is an optional interface a plugin instance may
// implement to supply the dispatcher-level error callback (gotgbot's
// ext.DispatcherOpts.Error). At most one plugin per bot should implement
// it; the dispatcher factory uses the first one found in plugin order,
// falling back to a built-in default logger if none do.
type DispatcherErrorHandler interface {
	HandleDispatchError(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction
}

