package stats

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multibot/entity"
)

type fakeRepo struct {
	mu      sync.Mutex
	flushes []entity.Delta
	failNext bool
}

func (f *fakeRepo) Flush(_ context.Context, _ string, _ time.Time, delta entity.Delta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.flushes = append(f.flushes, delta)
	return nil
}

func newTestCollector(repo FlushRepo) *Collector {
	return New(repo, time.Hour, slog.New(slog.DiscardHandler))
}

// TestFlush_S5Scenario mirrors spec scenario S5: 100 messages and 20 /start
// commands from 30 distinct users, then a flush.
func TestFlush_S5Scenario(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestCollector(repo)

	for i := 0; i < 30; i++ {
		c.RecordMessage("a", int64(i), false)
	}
	for i := 0; i < 70; i++ {
		c.RecordMessage("a", int64(i%30), false)
	}
	for i := 0; i < 20; i++ {
		c.RecordCommand("a", int64(i%30), "start", false)
	}

	c.flush(context.Background())

	require.Len(t, repo.flushes, 1)
	delta := repo.flushes[0]
	assert.Equal(t, int64(100), delta.Messages)
	assert.Equal(t, int64(20), delta.Commands)
	assert.Equal(t, int64(30), delta.UniqueUsers)
	assert.Equal(t, int64(20), delta.CommandUsage["start"])
}

func TestFlush_NoActivitySkipsWrite(t *testing.T) {
	repo := &fakeRepo{}
	c := newTestCollector(repo)

	c.flush(context.Background())
	assert.Empty(t, repo.flushes)
}

func TestFlush_FailedUpsertRetainsCounters(t *testing.T) {
	repo := &fakeRepo{failNext: true}
	c := newTestCollector(repo)

	c.RecordMessage("a", 1, true)
	c.flush(context.Background())
	assert.Empty(t, repo.flushes)

	c.flush(context.Background())
	require.Len(t, repo.flushes, 1)
	assert.Equal(t, int64(1), repo.flushes[0].Messages)
}
