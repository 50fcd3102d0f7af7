package registry

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/internal/plugin"
)

type stubClass struct {
	name string
	deps []string
}

func (s *stubClass) Name() string              { return s.name }
func (s *stubClass) Version() string           { return "1.0.0" }
func (s *stubClass) Dependencies() []string    { return s.deps }
func (s *stubClass) SupportsHotReload() bool   { return true }
func (s *stubClass) New(map[string]any) plugin.Plugin { return nil }

func newTestRegistry() *Registry {
	return New(slog.New(slog.DiscardHandler))
}

func TestResolveDependencies_OrdersDependenciesFirst(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&stubClass{name: "a"}))
	require.NoError(t, r.Register(&stubClass{name: "b", deps: []string{"a"}}))
	require.NoError(t, r.Register(&stubClass{name: "c", deps: []string{"a", "b"}}))

	ordered, err := r.ResolveDependencies([]string{"c"})
	require.NoError(t, err)

	index := make(map[string]int)
	for i, name := range ordered {
		index[name] = i
	}
	assert.Less(t, index["a"], index["b"])
	assert.Less(t, index["b"], index["c"])
}

func TestResolveDependencies_Idempotent(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&stubClass{name: "a"}))
	require.NoError(t, r.Register(&stubClass{name: "b", deps: []string{"a"}}))

	first, err := r.ResolveDependencies([]string{"b"})
	require.NoError(t, err)
	second, err := r.ResolveDependencies(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveDependencies_CycleDetected(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&stubClass{name: "a", deps: []string{"b"}}))
	require.NoError(t, r.Register(&stubClass{name: "b", deps: []string{"a"}}))

	_, err := r.ResolveDependencies([]string{"a"})
	require.Error(t, err)
	var cycleErr *PluginCycleDetectedError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestResolveDependencies_UnknownDependencyFails(t *testing.T) {
	r := newTestRegistry()
	require.NoError(t, r.Register(&stubClass{name: "a", deps: []string{"missing"}}))

	_, err := r.ResolveDependencies([]string{"a"})
	require.Error(t, err)
	var notFound *PluginNotFoundError
	assert.ErrorAs(t, err, &notFound)
}
