// Package loader dynamically loads plugin classes from Go plugin (.so)
// files, grounded on the original PluginLoader's load/reload/unload API.
// This is the opt-in secondary path alongside the compiled-in catalog:
// Go's plugin package requires the .so to be built with the exact same
// toolchain and dependency versions as the host binary, so it only suits
// operators building their own plugins in lockstep with this binary.
package loader

import (
	pluginpkg "plugin"

	"fmt"
	"log/slog"
	"sync"

	"multibot/internal/plugin"
	"multibot/internal/plugin/registry"
	"multibot/lib/sl"
)

// PluginLoadFailedError is the typed PluginLoadFailed{path,reason} error
// kind from spec.md §7.
type PluginLoadFailedError struct {
	Path   string
	Reason string
}

func (e *PluginLoadFailedError) Error() string {
	return fmt.Sprintf("plugin load failed: %s: %s", e.Path, e.Reason)
}

// Loader tracks which plugin name came from which .so path, so it can be
// unloaded or reloaded by name. Go's plugin package never releases a
// loaded .so's memory — reload here means "load a replacement under the
// same name and re-register it", not an actual unmap.
type Loader struct {
	registry *registry.Registry
	log      *slog.Logger

	mu    sync.Mutex
	paths map[string]string // plugin name -> source path
}

func New(reg *registry.Registry, log *slog.Logger) *Loader {
	return &Loader{
		registry: reg,
		log:      log.With(sl.Module("plugin.loader")),
		paths:    make(map[string]string),
	}
}

// Load opens path as a Go plugin and registers the exported Class symbol
// under the registry. The .so must export a package-level variable named
// "Class" implementing plugin.Class.
func (l *Loader) Load(path string) (plugin.Class, error) {
	p, err := pluginpkg.Open(path)
	if err != nil {
		return nil, &PluginLoadFailedError{Path: path, Reason: err.Error()}
	}

	sym, err := p.Lookup("Class")
	if err != nil {
		return nil, &PluginLoadFailedError{Path: path, Reason: "no exported Class symbol"}
	}

	class, ok := sym.(plugin.Class)
	if !ok {
		classPtr, okPtr := sym.(*plugin.Class)
		if !okPtr {
			return nil, &PluginLoadFailedError{Path: path, Reason: "exported Class does not implement plugin.Class"}
		}
		class = *classPtr
	}

	if err := l.registry.Register(class); err != nil {
		return nil, &PluginLoadFailedError{Path: path, Reason: err.Error()}
	}

	l.mu.Lock()
	l.paths[class.Name()] = path
	l.mu.Unlock()

	l.log.Info("loaded plugin", sl.PluginName(class.Name()), slog.String("path", path))
	return class, nil
}

// Reload re-opens the .so a loaded plugin came from and re-registers it,
// replacing the previous class in the registry. The caller is responsible
// for rebuilding any ManagedBot dispatcher that already holds instances of
// the old class.
func (l *Loader) Reload(name string) (plugin.Class, error) {
	l.mu.Lock()
	path, ok := l.paths[name]
	l.mu.Unlock()
	if !ok {
		return nil, &PluginLoadFailedError{Path: name, Reason: "plugin not loaded, cannot reload"}
	}

	l.registry.Unregister(name)
	return l.Load(path)
}

// Unload removes a dynamically loaded plugin from the registry. The
// process retains the .so in memory until it exits; this only affects
// future lookups and plugin creation.
func (l *Loader) Unload(name string) {
	l.mu.Lock()
	delete(l.paths, name)
	l.mu.Unlock()
	l.registry.Unregister(name)
	l.log.Info("unloaded plugin", sl.PluginName(name))
}

// IsLoaded reports whether name was loaded dynamically by this loader.
func (l *Loader) IsLoaded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.paths[name]
	return ok
}
