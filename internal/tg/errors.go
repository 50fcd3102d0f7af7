package tg

import (
	"fmt"
	"time"
)

// WireTimeoutError is the typed WireTimeout error kind from spec.md §7,
// returned when a call to the Telegram Bot API exceeds its deadline.
type WireTimeoutError struct {
	Op string
}

func (e *WireTimeoutError) Error() string {
	return fmt.Sprintf("telegram wire timeout during %s", e.Op)
}

// WireRateLimitedError is the typed WireRateLimited{retry_after} error kind,
// surfaced when Telegram responds 429.
type WireRateLimitedError struct {
	RetryAfter time.Duration
}

func (e *WireRateLimitedError) Error() string {
	return fmt.Sprintf("telegram wire rate limited, retry after %s", e.RetryAfter)
}

// WireForbiddenError is the typed WireForbidden error kind, returned when
// the target user has blocked the bot.
type WireForbiddenError struct {
	TelegramID int64
}

func (e *WireForbiddenError) Error() string {
	return fmt.Sprintf("telegram wire forbidden: user %d blocked the bot", e.TelegramID)
}
