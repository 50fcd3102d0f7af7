package entity

import "time"

// UserTokenBalance is keyed by (TelegramID, BotID). balance is always
// total_purchased + total_granted - total_consumed, and never negative;
// total_granted is not stored directly, it is the sum of non-purchase
// credit transactions for the pair.
type UserTokenBalance struct {
	TelegramID     int64
	BotID          string
	Balance        int64
	TotalPurchased int64
	TotalConsumed  int64
}

// TransactionType enumerates the kinds of ledger mutation.
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionConsume  TransactionType = "consume"
	TransactionGrant    TransactionType = "grant"
	TransactionRefund   TransactionType = "refund"
)

// TokenTransaction is one append-only ledger row. Amount is signed:
// positive for credits (purchase/grant/refund), negative for consume.
// BalanceAfter always equals the balance row's value immediately after the
// mutation that produced this row — both are written in one store transaction.
type TokenTransaction struct {
	ID            int64
	TelegramID    int64
	BotID         string
	Type          TransactionType
	Amount        int64
	BalanceAfter  int64
	ReferenceType string
	ReferenceID   string
	StarsPaid     int64
	Metadata      map[string]any
	CreatedAt     time.Time
}
