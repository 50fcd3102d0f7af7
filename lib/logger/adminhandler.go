package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"multibot/lib/tgfmt"
)

// AdminNotifier delivers a formatted log line to whatever channel the
// process uses to reach administrators (typically every bot's admin set).
type AdminNotifier interface {
	NotifyAdmins(msg string, level slog.Level)
}

// AdminHandler is a slog.Handler that forwards ERROR+ records (by default)
// to an AdminNotifier in addition to the wrapped handler. It never blocks
// logging on delivery failures — NotifyAdmins implementations are expected
// to be best-effort and non-blocking themselves.
type AdminHandler struct {
	handler  slog.Handler
	notifier AdminNotifier
	minLevel slog.Level
	mu       *sync.Mutex
	attrs    []slog.Attr
	group    string
}

func NewAdminHandler(handler slog.Handler, notifier AdminNotifier, minLevel slog.Level) *AdminHandler {
	return &AdminHandler{
		handler:  handler,
		notifier: notifier,
		minLevel: minLevel,
		mu:       &sync.Mutex{},
	}
}

func (h *AdminHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *AdminHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.handler.Handle(ctx, record); err != nil {
		return err
	}

	if record.Level < h.minLevel || h.notifier == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var msg string
	if h.group != "" {
		msg = fmt.Sprintf("*%s* `%s.%s`", record.Level.String(), h.group, record.Message)
	} else {
		msg = fmt.Sprintf("*%s* `%s`", record.Level.String(), record.Message)
	}

	for _, attr := range h.attrs {
		msg += formatAttr(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		msg += formatAttr(attr)
		return true
	})

	h.notifier.NotifyAdmins(msg, record.Level)
	return nil
}

func formatAttr(attr slog.Attr) string {
	if attr.Key == "error" {
		return fmt.Sprintf("\n%s: ```\n%v\n```", attr.Key, attr.Value)
	}
	return tgfmt.Sanitize(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value))
}

func (h *AdminHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(merged, h.attrs)
	copy(merged[len(h.attrs):], attrs)
	return &AdminHandler{
		handler:  h.handler.WithAttrs(attrs),
		notifier: h.notifier,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    merged,
		group:    h.group,
	}
}

func (h *AdminHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &AdminHandler{
		handler:  h.handler.WithGroup(name),
		notifier: h.notifier,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    h.attrs,
		group:    group,
	}
}
