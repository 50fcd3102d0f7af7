package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"multibot/entity"
)

// StatsRepo persists hourly statistics buckets. Flushes are idempotent in
// direction (always additive) but not in replay safety: applying the same
// Delta twice double-counts, matching the in-memory collector's contract
// that a bucket of counters is handed off and cleared exactly once.
type StatsRepo struct {
	db *sql.DB
}

func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// Flush applies delta to the row for (botID, hourBucket), creating it if
// absent. command_usage is merged key-wise by summing, done in Go because
// MySQL's JSON functions have no native "add to existing numeric key"
// operation; the row is locked with FOR UPDATE for the duration.
func (r *StatsRepo) Flush(ctx context.Context, botID string, hourBucket time.Time, delta entity.Delta) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repo: flush begin: %w", err)
	}
	defer tx.Rollback()

	var rawUsage sql.NullString
	var existingUnique int64
	err = tx.QueryRowContext(ctx, `
		SELECT unique_users, command_usage FROM bot_statistics
		WHERE bot_id = ? AND hour_bucket = ? FOR UPDATE
	`, botID, hourBucket).Scan(&existingUnique, &rawUsage)

	usage := map[string]int64{}
	if err == nil {
		if rawUsage.Valid && rawUsage.String != "" {
			if jErr := json.Unmarshal([]byte(rawUsage.String), &usage); jErr != nil {
				return fmt.Errorf("repo: decode command_usage: %w", jErr)
			}
		}
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("repo: flush select: %w", err)
	}

	for k, v := range delta.CommandUsage {
		usage[k] += v
	}
	encoded, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("repo: encode command_usage: %w", err)
	}

	uniqueUsers := delta.UniqueUsers
	if existingUnique > uniqueUsers {
		uniqueUsers = existingUnique
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bot_statistics
			(bot_id, hour_bucket, message_count, command_count, callback_count, error_count, unique_users, new_users, command_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			message_count = message_count + VALUES(message_count),
			command_count = command_count + VALUES(command_count),
			callback_count = callback_count + VALUES(callback_count),
			error_count = error_count + VALUES(error_count),
			unique_users = GREATEST(unique_users, VALUES(unique_users)),
			new_users = new_users + VALUES(new_users),
			command_usage = VALUES(command_usage)
	`, botID, hourBucket, delta.Messages, delta.Commands, delta.Callbacks, delta.Errors, uniqueUsers, delta.NewUsers, string(encoded))
	if err != nil {
		return fmt.Errorf("repo: flush upsert: %w", err)
	}

	return tx.Commit()
}

// Bucket returns the current aggregate for (botID, hourBucket), or a
// zero-valued bucket if no flush has happened yet this hour.
func (r *StatsRepo) Bucket(ctx context.Context, botID string, hourBucket time.Time) (*entity.StatsBucket, error) {
	b := &entity.StatsBucket{BotID: botID, HourBucket: hourBucket, CommandUsage: map[string]int64{}}
	var rawUsage sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT message_count, command_count, callback_count, error_count, unique_users, new_users, command_usage
		FROM bot_statistics WHERE bot_id = ? AND hour_bucket = ?
	`, botID, hourBucket).Scan(&b.MessageCount, &b.CommandCount, &b.CallbackCount, &b.ErrorCount, &b.UniqueUsers, &b.NewUsers, &rawUsage)
	if err == sql.ErrNoRows {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repo: bucket: %w", err)
	}
	if rawUsage.Valid && rawUsage.String != "" {
		_ = json.Unmarshal([]byte(rawUsage.String), &b.CommandUsage)
	}
	return b, nil
}
