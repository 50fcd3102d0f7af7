// Package registry maps plugin names to plugin classes and resolves
// dependency order, grounded on the original PluginRegistry's
// register/resolve_dependencies API.
package registry

import (
	"fmt"
	"log/slog"
	"sync"

	"multibot/internal/plugin"
	"multibot/lib/sl"
)

// PluginNotFoundError is the typed PluginNotFound error kind from spec.md §7.
type PluginNotFoundError struct {
	Name string
}

func (e *PluginNotFoundError) Error() string {
	return fmt.Sprintf("plugin not found: %s", e.Name)
}

// PluginCycleDetectedError is the typed PluginCycleDetected error kind.
type PluginCycleDetectedError struct {
	Name string
}

func (e *PluginCycleDetectedError) Error() string {
	return fmt.Sprintf("plugin dependency cycle detected at: %s", e.Name)
}

// Registry is the process-wide name→class map. It is constructed once at
// startup and passed by reference, never accessed through a package-level
// singleton.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]plugin.Class
	log     *slog.Logger
}

func New(log *slog.Logger) *Registry {
	return &Registry{
		classes: make(map[string]plugin.Class),
		log:     log.With(sl.Module("plugin.registry")),
	}
}

// Register adds a plugin class. Registering over an existing name replaces
// it, logged at warn, matching the original's "Replacing existing plugin".
func (r *Registry) Register(class plugin.Class) error {
	if class.Name() == "" {
		return fmt.Errorf("registry: plugin class must have a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.classes[class.Name()]; exists {
		r.log.Warn("replacing existing plugin", slog.String("plugin", class.Name()))
	}
	r.classes[class.Name()] = class
	r.log.Debug("registered plugin", sl.PluginName(class.Name()), slog.String("version", class.Version()))
	return nil
}

// Unregister removes a plugin class, a no-op if it was not registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.classes, name)
}

// Get returns the class registered under name, or PluginNotFoundError.
func (r *Registry) Get(name string) (plugin.Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	class, ok := r.classes[name]
	if !ok {
		return nil, &PluginNotFoundError{Name: name}
	}
	return class, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classes[name]
	return ok
}

// List returns every registered plugin name.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	return names
}

type color int

const (
	white color = iota // unseen
	gray               // visiting
	black              // done
)

// ResolveDependencies returns names in an order where every dependency
// precedes its dependents, using a three-color DFS. It is idempotent: an
// already-ordered input with satisfied dependencies returns unchanged.
func (r *Registry) ResolveDependencies(names []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	colors := make(map[string]color)
	var resolved []string

	var visit func(name string) error
	visit = func(name string) error {
		switch colors[name] {
		case black:
			return nil
		case gray:
			return &PluginCycleDetectedError{Name: name}
		}

		colors[name] = gray
		class, ok := r.classes[name]
		if !ok {
			return &PluginNotFoundError{Name: name}
		}
		for _, dep := range class.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[name] = black
		resolved = append(resolved, name)
		return nil
	}

	for _, name := range names {
		if colors[name] != black {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return resolved, nil
}
