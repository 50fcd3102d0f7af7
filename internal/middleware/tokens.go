package middleware

import (
	"context"
	"fmt"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/entity"
	"multibot/internal/plugin"
)

// BalanceLoader is the subset of *ledger.Ledger the token middleware needs.
// Ledger.Balance grants the configured free-token amount on first contact
// before returning, so a fresh user already has a spendable balance.
type BalanceLoader interface {
	Balance(ctx context.Context, telegramID int64, botID string) (*entity.UserTokenBalance, error)
}

// Tokens ensures a balance row exists for the effective user and injects
// it (plus the is-new-user flag already set by Session) into ctx.Data, for
// plugins like billing/horoscope/md2pdf to read with middleware.Balance.
// It is only attached to bots that enable the billing plugin.
func Tokens(botID string, tokens BalanceLoader) plugin.Middleware {
	return func(next plugin.HandlerFunc) plugin.HandlerFunc {
		return func(b *tgbotapi.Bot, ctx *ext.Context) error {
			if ctx.EffectiveUser == nil {
				return next(b, ctx)
			}

			bal, err := tokens.Balance(context.Background(), ctx.EffectiveUser.Id, botID)
			if err != nil {
				return fmt.Errorf("middleware: load balance: %w", err)
			}
			setData(ctx, keyBalance, bal)
			return next(b, ctx)
		}
	}
}
