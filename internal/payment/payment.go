// Package payment is the boundary to the external fungible-token ledger that
// settles subscription fees.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTransferRejected      = errors.New("destination rejected transfer")
	ErrInvalidAmount         = errors.New("invalid transfer amount")
	ErrRailUnavailable       = errors.New("payment rail unavailable")
)

// Gateway moves funds between accounts and the engine's custody.
type Gateway interface {
	// Pull moves amount from `from` into custody, bounded by what `from`
	// pre-authorized.
	Pull(ctx context.Context, from string, amount decimal.Decimal) error
	// Push moves amount out of custody to `to`.
	Push(ctx context.Context, to string, amount decimal.Decimal) error
	// CanPull is a best-effort probe: both allowance and balance cover amount.
	CanPull(ctx context.Context, from string, amount decimal.Decimal) (bool, error)
	CustodyBalance(ctx context.Context) (decimal.Decimal, error)
	// CustodyAccount is the account that holds collected fees.
	CustodyAccount() string
}

type idempotencyKey struct{}

// WithIdempotencyKey tags the transfers made with ctx. A rail that sees the
// same key twice applies the transfer once.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func IdempotencyKeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.IsInteger()
}
