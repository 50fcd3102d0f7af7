// Package stats implements the two-layer statistics collector from
// spec.md §4.5: an in-memory hot layer under one mutex, and a ticker-driven
// cold flusher modeled directly on the teacher's bot/digest.go DigestBuffer
// (ticker + stopCh/done, snapshot-and-clear, final flush on Stop).
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"multibot/entity"
	"multibot/lib/sl"
)

// FlushRepo is the subset of *repo.StatsRepo the collector needs, narrowed
// to a local interface so tests can substitute a fake rather than a real
// database.
type FlushRepo interface {
	Flush(ctx context.Context, botID string, hourBucket time.Time, delta entity.Delta) error
}

type hotCounters struct {
	messages  int64
	commands  int64
	callbacks int64
	errors    int64
	newUsers  int64
	seenUsers map[int64]struct{}
	usage     map[string]int64
}

func newHotCounters() *hotCounters {
	return &hotCounters{
		seenUsers: make(map[int64]struct{}),
		usage:     make(map[string]int64),
	}
}

// Collector is the process-wide stats collector, one instance shared by
// every bot. Counters are mutated under a single mutex per spec.md §5
// ("Stats counters: process-wide, a single exclusion primitive for both
// mutations and snapshot-and-clear").
type Collector struct {
	mu       sync.Mutex
	hot      map[string]*hotCounters // bot_id -> counters
	repo     FlushRepo
	log      *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
}

func New(statsRepo FlushRepo, interval time.Duration, log *slog.Logger) *Collector {
	return &Collector{
		hot:      make(map[string]*hotCounters),
		repo:     statsRepo,
		log:      log.With(sl.Module("stats")),
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Collector) counters(botID string) *hotCounters {
	h, ok := c.hot[botID]
	if !ok {
		h = newHotCounters()
		c.hot[botID] = h
	}
	return h
}

// RecordMessage records one inbound message for botID from userID.
func (c *Collector) RecordMessage(botID string, userID int64, isNewUser bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.counters(botID)
	h.messages++
	h.seenUsers[userID] = struct{}{}
	if isNewUser {
		h.newUsers++
	}
}

// RecordCommand records one command invocation, keyed by the bare command
// name (leading "/" and "@bot_mention" already stripped by the caller).
func (c *Collector) RecordCommand(botID string, userID int64, command string, isNewUser bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.counters(botID)
	h.commands++
	h.usage[command]++
	h.seenUsers[userID] = struct{}{}
	if isNewUser {
		h.newUsers++
	}
}

// RecordCallback records one callback-query event.
func (c *Collector) RecordCallback(botID string, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.counters(botID)
	h.callbacks++
	h.seenUsers[userID] = struct{}{}
}

// RecordError records one handler-level error for botID.
func (c *Collector) RecordError(botID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(botID).errors++
}

// Snapshot reports a read-only copy of the current hot counters per bot,
// without clearing them; used by the metrics endpoint between flushes.
func (c *Collector) Snapshot() map[string]entity.Delta {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]entity.Delta, len(c.hot))
	for botID, h := range c.hot {
		out[botID] = entity.Delta{
			Messages:    h.messages,
			Commands:    h.commands,
			Callbacks:   h.callbacks,
			Errors:      h.errors,
			NewUsers:    h.newUsers,
			UniqueUsers: int64(len(h.seenUsers)),
		}
	}
	return out
}

// Start launches the background flusher goroutine.
func (c *Collector) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.flush(context.Background())
			case <-c.stopCh:
				c.flush(context.Background())
				return
			}
		}
	}()
}

// Stop cancels the flusher and performs one final synchronous flush.
func (c *Collector) Stop() {
	close(c.stopCh)
	<-c.done
}

// flush snapshots and clears the hot counters, then upserts one row per
// touched bot. A bot whose upsert fails has its delta merged back into the
// live hot counters so the next tick retries with no loss.
func (c *Collector) flush(ctx context.Context) {
	c.mu.Lock()
	snapshot := c.hot
	c.hot = make(map[string]*hotCounters)
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	hourBucket := time.Now().UTC().Truncate(time.Hour)

	for botID, h := range snapshot {
		if h.messages == 0 && h.commands == 0 && h.callbacks == 0 && h.errors == 0 && len(h.seenUsers) == 0 {
			continue
		}

		delta := entity.Delta{
			Messages:     h.messages,
			Commands:     h.commands,
			Callbacks:    h.callbacks,
			Errors:       h.errors,
			NewUsers:     h.newUsers,
			UniqueUsers:  int64(len(h.seenUsers)),
			CommandUsage: h.usage,
		}

		if err := c.repo.Flush(ctx, botID, hourBucket, delta); err != nil {
			c.log.With(sl.BotID(botID), sl.Err(err)).Warn("stats flush failed, retrying next tick")
			c.mergeBack(botID, h)
		}
	}
}

// mergeBack re-adds a failed bot's counters into the live hot layer.
func (c *Collector) mergeBack(botID string, h *hotCounters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := c.counters(botID)
	live.messages += h.messages
	live.commands += h.commands
	live.callbacks += h.callbacks
	live.errors += h.errors
	live.newUsers += h.newUsers
	for id := range h.seenUsers {
		live.seenUsers[id] = struct{}{}
	}
	for cmd, n := range h.usage {
		live.usage[cmd] += n
	}
}
