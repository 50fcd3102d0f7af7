// Package repo implements the relational and document-store access
// patterns for the supervisor, grounded on the teacher's internal/database
// CRUD idiom (explicit SQL, no ORM) and, for plugin scratch state, its
// MongoDB connect-per-call style.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"multibot/entity"
)

// BotsRepo persists bot registration rows and their lifecycle events.
type BotsRepo struct {
	db *sql.DB
}

func NewBotsRepo(db *sql.DB) *BotsRepo {
	return &BotsRepo{db: db}
}

// Upsert registers a bot or updates its static fields, leaving last_state
// untouched — state transitions go through SetState.
func (r *BotsRepo) Upsert(ctx context.Context, cfg *entity.BotConfig) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bots (bot_id, name, mode, enabled, last_state)
		VALUES (?, ?, ?, ?, 'stopped')
		ON DUPLICATE KEY UPDATE name = VALUES(name), mode = VALUES(mode), enabled = VALUES(enabled)
	`, cfg.ID, cfg.Name, string(cfg.Mode), cfg.Enabled)
	if err != nil {
		return fmt.Errorf("repo: upsert bot: %w", err)
	}
	return nil
}

// SetState records the bot's current lifecycle state for observability
// and crash-recovery bookkeeping; it is not read back to decide behavior,
// the in-memory ManagedBot is always the source of truth while running.
func (r *BotsRepo) SetState(ctx context.Context, botID, state string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bots SET last_state = ? WHERE bot_id = ?`, state, botID)
	if err != nil {
		return fmt.Errorf("repo: set bot state: %w", err)
	}
	return nil
}

// RecordEvent appends a row to the bot's lifecycle/error event log.
func (r *BotsRepo) RecordEvent(ctx context.Context, botID, eventType, detailJSON string) error {
	var detail any
	if detailJSON != "" {
		detail = detailJSON
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bot_events (bot_id, event_type, detail) VALUES (?, ?, ?)
	`, botID, eventType, detail)
	if err != nil {
		return fmt.Errorf("repo: record bot event: %w", err)
	}
	return nil
}

// KnownBotIDs lists every bot_id the store has ever seen. Nothing in this
// module calls it.
func (r *BotsRepo) KnownBotIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT bot_id FROM bots`)
	if err != nil {
		return nil, fmt.Errorf("repo: known bot ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repo: scan bot id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ErrBotNotFound is returned by lookups against an unregistered bot_id.
var ErrBotNotFound = errors.New("repo: bot not found")
