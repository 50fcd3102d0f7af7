package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"multibot/entity"
)

// TransactionsRepo appends to the immutable token ledger. Rows are never
// updated or deleted; corrections are made with a new offsetting row.
type TransactionsRepo struct {
	db *sql.DB
}

func NewTransactionsRepo(db *sql.DB) *TransactionsRepo {
	return &TransactionsRepo{db: db}
}

// AppendTx inserts the log row using dbtx, the same *sql.Tx the caller used
// to mutate the balance, so the two writes commit or roll back together.
func (r *TransactionsRepo) AppendTx(ctx context.Context, dbtx *sql.Tx, entry *entity.TokenTransaction) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("repo: encode transaction metadata: %w", err)
		}
	}

	res, err := dbtx.ExecContext(ctx, `
		INSERT INTO token_transactions
			(telegram_id, bot_id, type, amount, balance_after, reference_type, reference_id, stars_paid, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.TelegramID, entry.BotID, string(entry.Type), entry.Amount, entry.BalanceAfter, entry.ReferenceType, entry.ReferenceID, entry.StarsPaid, nullableJSON(metadata))
	if err != nil {
		return fmt.Errorf("repo: append transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("repo: transaction id: %w", err)
	}
	entry.ID = id
	return nil
}

// History returns the most recent transactions for (telegramID, botID),
// newest first, bounded by limit.
func (r *TransactionsRepo) History(ctx context.Context, telegramID int64, botID string, limit int) ([]*entity.TokenTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, telegram_id, bot_id, type, amount, balance_after, reference_type, reference_id, stars_paid, metadata, created_at
		FROM token_transactions
		WHERE telegram_id = ? AND bot_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, telegramID, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: transaction history: %w", err)
	}
	defer rows.Close()

	var out []*entity.TokenTransaction
	for rows.Next() {
		t := &entity.TokenTransaction{}
		var rawMetadata sql.NullString
		var rawType string
		if err := rows.Scan(&t.ID, &t.TelegramID, &t.BotID, &rawType, &t.Amount, &t.BalanceAfter,
			&t.ReferenceType, &t.ReferenceID, &t.StarsPaid, &rawMetadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("repo: scan transaction: %w", err)
		}
		t.Type = entity.TransactionType(rawType)
		if rawMetadata.Valid && rawMetadata.String != "" {
			_ = json.Unmarshal([]byte(rawMetadata.String), &t.Metadata)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
