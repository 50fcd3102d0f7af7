// Package catalog registers the compiled-in plugin classes, the default
// path chosen over Go's plugin.Open for built-in domain plugins per the
// REDESIGN FLAGS guidance: a single static binary with no ABI-matching
// fragility. Dynamic .so loading remains available, see internal/plugin/loader,
// for operators who want to ship third-party plugins without a rebuild.
package catalog

import (
	"multibot/internal/plugin"
	"multibot/internal/plugin/registry"
	"multibot/internal/plugins/admin"
	"multibot/internal/plugins/billing"
	"multibot/internal/plugins/errorhandler"
	"multibot/internal/plugins/help"
	"multibot/internal/plugins/horoscope"
	"multibot/internal/plugins/md2pdf"
	"multibot/internal/plugins/start"
)

// RegisterBuiltins registers every compiled-in plugin class into r. It is
// called once at startup, before any bot loads its plugin list. Classes
// registered here carry zero values for fields the dispatcher factory
// injects per-bot (Ledger, Manager, Stats, ...); instantiate() in
// internal/dispatcher substitutes the wired class before calling New.
func RegisterBuiltins(r *registry.Registry) error {
	classes := []plugin.Class{
		start.Class{},
		help.Class{},
		errorhandler.Class{},
		billing.Class{},
		horoscope.Class{},
		md2pdf.Class{},
		admin.Class{},
	}

	for _, class := range classes {
		if err := r.Register(class); err != nil {
			return err
		}
	}
	return nil
}
