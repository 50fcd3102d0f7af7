package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"multibot/entity"
)

// TokensRepo persists per-(user, bot) token balances. MySQL has no
// UPDATE ... RETURNING, so Consume reads the balance with FOR UPDATE inside
// a transaction, checks it in Go, and writes the new value back in the same
// transaction — the idiomatic MySQL substitute for an atomic conditional
// decrement.
type TokensRepo struct {
	db *sql.DB
}

func NewTokensRepo(db *sql.DB) *TokensRepo {
	return &TokensRepo{db: db}
}

// ErrInsufficientTokens is returned by Consume when the balance is too low.
var ErrInsufficientTokens = errors.New("repo: insufficient tokens")

// Balance returns the current balance for (telegramID, botID) and whether a
// row already existed. On sql.ErrNoRows it returns a zero-valued balance and
// existed=false, leaving it to the caller (the ledger) to decide whether a
// first-contact grant is owed — this repo has no opinion on free-token policy.
func (r *TokensRepo) Balance(ctx context.Context, telegramID int64, botID string) (*entity.UserTokenBalance, bool, error) {
	bal := &entity.UserTokenBalance{TelegramID: telegramID, BotID: botID}
	err := r.db.QueryRowContext(ctx, `
		SELECT balance, total_purchased, total_consumed FROM user_tokens
		WHERE telegram_id = ? AND bot_id = ?
	`, telegramID, botID).Scan(&bal.Balance, &bal.TotalPurchased, &bal.TotalConsumed)
	if err == sql.ErrNoRows {
		return bal, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("repo: balance: %w", err)
	}
	return bal, true, nil
}

// ConsumeTx atomically deducts amount from the balance within tx, failing
// with ErrInsufficientTokens if the balance is too low. Returns the balance
// after the deduction. The caller owns tx's lifetime — this lets Consume and
// the matching transaction-log append share a single commit/rollback, per
// the TokenTransaction invariant that a balance mutation and its log row
// never split across transactions.
func (r *TokensRepo) ConsumeTx(ctx context.Context, tx *sql.Tx, telegramID int64, botID string, amount int64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `
		SELECT balance FROM user_tokens WHERE telegram_id = ? AND bot_id = ? FOR UPDATE
	`, telegramID, botID).Scan(&balance)
	if err == sql.ErrNoRows {
		balance = 0
	} else if err != nil {
		return 0, fmt.Errorf("repo: consume select: %w", err)
	}

	if balance < amount {
		return 0, ErrInsufficientTokens
	}
	after := balance - amount

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_tokens (telegram_id, bot_id, balance, total_consumed)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE balance = ?, total_consumed = total_consumed + ?
	`, telegramID, botID, after, amount, after, amount)
	if err != nil {
		return 0, fmt.Errorf("repo: consume update: %w", err)
	}
	return after, nil
}

// CreditTx atomically adds amount to the balance (purchase, grant, or
// refund) within tx and returns the balance afterward. Same tx-sharing
// contract as ConsumeTx.
func (r *TokensRepo) CreditTx(ctx context.Context, tx *sql.Tx, telegramID int64, botID string, amount int64, purchase bool) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `
		SELECT balance FROM user_tokens WHERE telegram_id = ? AND bot_id = ? FOR UPDATE
	`, telegramID, botID).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("repo: credit select: %w", err)
	}
	after := balance + amount

	purchasedDelta := int64(0)
	if purchase {
		purchasedDelta = amount
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_tokens (telegram_id, bot_id, balance, total_purchased)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE balance = ?, total_purchased = total_purchased + ?
	`, telegramID, botID, after, purchasedDelta, after, purchasedDelta)
	if err != nil {
		return 0, fmt.Errorf("repo: credit update: %w", err)
	}
	return after, nil
}
