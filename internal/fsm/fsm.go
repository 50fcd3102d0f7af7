// Package fsm stores short-lived per-chat conversation state: which step of
// a multi-message flow a chat is in, plus whatever scratch data that step
// needs. It backs plugins that ask a follow-up question instead of handling
// everything from a single command's arguments, grounded on the teacher's
// stateless-handler style extended with a pluggable backend rather than
// invented from scratch.
package fsm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is one conversation step plus whatever data it was entered with.
type State struct {
	Step string         `json:"step"`
	Data map[string]any `json:"data,omitempty"`
}

// Store is the conversation-state backend. Keys are scoped by bot and chat
// so the same store instance can serve every managed bot.
type Store interface {
	Get(ctx context.Context, botID string, chatID int64) (State, bool, error)
	Set(ctx context.Context, botID string, chatID int64, state State, ttl time.Duration) error
	Clear(ctx context.Context, botID string, chatID int64) error
}

// New builds the backend named by strategy ("memory" or "redis"), matching
// entity.BotConfig.FSMStrategy's validation values. Selection is
// process-wide rather than per-bot: redisAddr is read once from the process
// config, not from each bot's YAML.
func New(strategy, redisAddr string) (Store, error) {
	switch strategy {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		if redisAddr == "" {
			return nil, fmt.Errorf("fsm: redis strategy requires REDIS_ADDR")
		}
		return NewRedisStore(redisAddr), nil
	default:
		return nil, fmt.Errorf("fsm: unknown strategy %q", strategy)
	}
}

func key(botID string, chatID int64) string {
	return fmt.Sprintf("fsm:%s:%d", botID, chatID)
}

// MemoryStore keeps conversation state in a process-local map. Entries never
// expire on their own; callers that care about staleness should check
// State.Data themselves or rely on the redis backend's TTL.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]State)}
}

func (s *MemoryStore) Get(_ context.Context, botID string, chatID int64) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[key(botID, chatID)]
	return st, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, botID string, chatID int64, state State, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key(botID, chatID)] = state
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, botID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key(botID, chatID))
	return nil
}

// RedisStore backs conversation state with Redis, for multi-process
// deployments where every process must see the same state for a chat.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *RedisStore) Get(ctx context.Context, botID string, chatID int64) (State, bool, error) {
	raw, err := s.client.Get(ctx, key(botID, chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("fsm: redis get: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, false, fmt.Errorf("fsm: decode state: %w", err)
	}
	return st, true, nil
}

func (s *RedisStore) Set(ctx context.Context, botID string, chatID int64, state State, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("fsm: encode state: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := s.client.Set(ctx, key(botID, chatID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("fsm: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, botID string, chatID int64) error {
	if err := s.client.Del(ctx, key(botID, chatID)).Err(); err != nil {
		return fmt.Errorf("fsm: redis del: %w", err)
	}
	return nil
}
