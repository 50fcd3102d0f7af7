// Package ledger implements the token-billing core: every balance mutation
// and its append-only transaction log row are written inside one
// store.WithSession transaction, grounded on the teacher's
// store/transaction discipline (internal/database transactional helpers)
// and the original token_manager's consume/purchase/grant API.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"multibot/entity"
	"multibot/internal/store/repo"
)

// InsufficientTokensError is the typed InsufficientTokens error kind from
// spec.md §7. It is recoverable and user-visible, never logged at error
// level by callers.
type InsufficientTokensError struct {
	Required  int64
	Available int64
	Action    string
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens: need %d, have %d (action=%s)", e.Required, e.Available, e.Action)
}

// Sessions opens a transactional session, the same primitive
// middleware.Session uses, so a ledger method's balance mutation and its
// transaction-log append commit or roll back as one unit.
type Sessions interface {
	WithSession(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Ledger wraps the tokens and transactions repositories to present
// Consume/Purchase/Grant as single-call operations, each writing exactly
// one balance update and one transaction row in the same store transaction.
type Ledger struct {
	tokens       *repo.TokensRepo
	transactions *repo.TransactionsRepo
	sessions     Sessions
	freeTokens   int64
}

// New wires a ledger against the given repositories and session opener.
// freeTokens is the amount Balance grants the first time it sees a
// (telegramID, botID) pair with no existing row, per spec.md §4.3's
// onboarding requirement; pass 0 to disable the free-token grant.
func New(tokens *repo.TokensRepo, transactions *repo.TransactionsRepo, sessions Sessions, freeTokens int64) *Ledger {
	return &Ledger{tokens: tokens, transactions: transactions, sessions: sessions, freeTokens: freeTokens}
}

// Consume deducts amount tokens from (telegramID, botID)'s balance for the
// named action. Returns *InsufficientTokensError if the balance is too low;
// the balance row and transaction log are left untouched in that case.
func (l *Ledger) Consume(ctx context.Context, telegramID int64, botID string, amount int64, action string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: consume amount must be positive, got %d", amount)
	}

	var after int64
	err := l.sessions.WithSession(ctx, func(dbtx *sql.Tx) error {
		var err error
		after, err = l.tokens.ConsumeTx(ctx, dbtx, telegramID, botID, amount)
		if err != nil {
			return err
		}

		entry := &entity.TokenTransaction{
			TelegramID:    telegramID,
			BotID:         botID,
			Type:          entity.TransactionConsume,
			Amount:        -amount,
			BalanceAfter:  after,
			ReferenceType: "action",
			ReferenceID:   action,
		}
		return l.transactions.AppendTx(ctx, dbtx, entry)
	})
	if errors.Is(err, repo.ErrInsufficientTokens) {
		balance, _, balErr := l.tokens.Balance(ctx, telegramID, botID)
		available := int64(0)
		if balErr == nil {
			available = balance.Balance
		}
		return 0, &InsufficientTokensError{Required: amount, Available: available, Action: action}
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: consume: %w", err)
	}
	return after, nil
}

// Purchase credits tokens for a completed payment, identified by a
// caller-supplied idempotency key (paymentID) stored as the transaction's
// reference. The caller is responsible for validating price equality and
// for not invoking this twice for the same payment.
func (l *Ledger) Purchase(ctx context.Context, telegramID int64, botID string, pkg *entity.TokenPackage, starsPaid int64, paymentID string) (int64, error) {
	var after int64
	err := l.sessions.WithSession(ctx, func(dbtx *sql.Tx) error {
		var err error
		after, err = l.tokens.CreditTx(ctx, dbtx, telegramID, botID, pkg.Tokens, true)
		if err != nil {
			return err
		}

		entry := &entity.TokenTransaction{
			TelegramID:    telegramID,
			BotID:         botID,
			Type:          entity.TransactionPurchase,
			Amount:        pkg.Tokens,
			BalanceAfter:  after,
			ReferenceType: "payment",
			ReferenceID:   paymentID,
			StarsPaid:     starsPaid,
			Metadata:      map[string]any{"package_id": pkg.ID, "label": pkg.Label},
		}
		return l.transactions.AppendTx(ctx, dbtx, entry)
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: purchase: %w", err)
	}
	return after, nil
}

// Grant credits tokens outside of a purchase flow — promotions, admin
// grants, or first-contact free tokens. The credit does not count toward
// total_purchased.
func (l *Ledger) Grant(ctx context.Context, telegramID int64, botID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: grant amount must be positive, got %d", amount)
	}

	var after int64
	err := l.sessions.WithSession(ctx, func(dbtx *sql.Tx) error {
		var err error
		after, err = l.tokens.CreditTx(ctx, dbtx, telegramID, botID, amount, false)
		if err != nil {
			return err
		}

		entry := &entity.TokenTransaction{
			TelegramID:    telegramID,
			BotID:         botID,
			Type:          entity.TransactionGrant,
			Amount:        amount,
			BalanceAfter:  after,
			ReferenceType: "grant",
			ReferenceID:   reason,
		}
		return l.transactions.AppendTx(ctx, dbtx, entry)
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: grant: %w", err)
	}
	return after, nil
}

// Refund credits tokens back after a reversed consume, recorded as its own
// transaction type so the log distinguishes it from a fresh grant.
func (l *Ledger) Refund(ctx context.Context, telegramID int64, botID string, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("ledger: refund amount must be positive, got %d", amount)
	}

	var after int64
	err := l.sessions.WithSession(ctx, func(dbtx *sql.Tx) error {
		var err error
		after, err = l.tokens.CreditTx(ctx, dbtx, telegramID, botID, amount, false)
		if err != nil {
			return err
		}

		entry := &entity.TokenTransaction{
			TelegramID:    telegramID,
			BotID:         botID,
			Type:          entity.TransactionRefund,
			Amount:        amount,
			BalanceAfter:  after,
			ReferenceType: "refund",
			ReferenceID:   reason,
		}
		return l.transactions.AppendTx(ctx, dbtx, entry)
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: refund: %w", err)
	}
	return after, nil
}

// Balance returns the current balance for (telegramID, botID). The first
// time it is asked about a pair with no existing row, it grants freeTokens
// before returning, so a brand-new user already has a spendable balance
// instead of being stuck at zero forever.
func (l *Ledger) Balance(ctx context.Context, telegramID int64, botID string) (*entity.UserTokenBalance, error) {
	bal, existed, err := l.tokens.Balance(ctx, telegramID, botID)
	if err != nil {
		return nil, err
	}
	if existed || l.freeTokens <= 0 {
		return bal, nil
	}

	after, err := l.Grant(ctx, telegramID, botID, l.freeTokens, "first_contact")
	if err != nil {
		return nil, fmt.Errorf("ledger: first-contact grant: %w", err)
	}
	bal.Balance = after
	return bal, nil
}
