package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetClear(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "bot-a", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "bot-a", 1, State{Step: "awaiting_markdown"}, time.Minute))
	got, ok, err := s.Get(ctx, "bot-a", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "awaiting_markdown", got.Step)

	require.NoError(t, s.Clear(ctx, "bot-a", 1))
	_, ok, err = s.Get(ctx, "bot-a", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_ScopedByBotAndChat(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "bot-a", 1, State{Step: "x"}, 0))
	_, ok, err := s.Get(ctx, "bot-b", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_RejectsRedisWithoutAddr(t *testing.T) {
	_, err := New("redis", "")
	assert.Error(t, err)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	store, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
}
