package middleware

import (
	"database/sql"

	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"multibot/entity"
)

// Keys used in ext.Context.Data, gotgbot's built-in per-update scratch map,
// to pass state down the middleware chain to the plugin handler — the
// explicit substitute for a framework request-context object.
const (
	keyTx        = "mw:tx"
	keyBalance   = "mw:balance"
	keyIsNewUser = "mw:is_new_user"
)

func setData(ctx *ext.Context, key string, value any) {
	if ctx.Data == nil {
		ctx.Data = make(map[string]any)
	}
	ctx.Data[key] = value
}

// Tx returns the transactional session the session middleware opened for
// this update, if any.
func Tx(ctx *ext.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Data[keyTx].(*sql.Tx)
	return tx, ok
}

// Balance returns the token balance the token middleware loaded for this
// update's user, if the billing plugin is active for this bot.
func Balance(ctx *ext.Context) (*entity.UserTokenBalance, bool) {
	bal, ok := ctx.Data[keyBalance].(*entity.UserTokenBalance)
	return bal, ok
}

// IsNewUser reports whether the session middleware created a fresh
// bot_users row for this update's user.
func IsNewUser(ctx *ext.Context) bool {
	isNew, _ := ctx.Data[keyIsNewUser].(bool)
	return isNew
}
