// Package signals wires SIGINT/SIGTERM/SIGHUP per spec.md §6: the first
// two trigger graceful shutdown, SIGHUP triggers a config rescan. Grounded
// on the signal.Notify/select idiom used across the example pack's cmd
// entrypoints (e.g. Berektassuly-alem-hub/cmd/bot/main.go).
package signals

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"multibot/lib/sl"
)

// Handler reacts to OS signals until the given context is cancelled.
type Handler struct {
	onShutdown func()
	onReload   func()
	log        *slog.Logger
}

func New(onShutdown, onReload func(), log *slog.Logger) *Handler {
	return &Handler{
		onShutdown: onShutdown,
		onReload:   onReload,
		log:        log.With(sl.Module("signals")),
	}
}

// Run blocks, dispatching SIGHUP to onReload and SIGINT/SIGTERM to
// onShutdown, returning once onShutdown has been called or ctx is done.
func (h *Handler) Run(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			switch sig {
			case syscall.SIGHUP:
				h.log.Info("received SIGHUP, rescanning config")
				h.onReload()
			case syscall.SIGINT, syscall.SIGTERM:
				h.log.Info("received shutdown signal", slog.String("signal", sig.String()))
				h.onShutdown()
				return
			}
		}
	}
}
