package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by Withdraw when the actor's balance
// cannot cover the requested amount. Any other error from the gateway
// indicates a provider-side failure.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger is the boundary to the external currency balance service.
// Deposit and Withdraw must be safe to use as compensation for each other:
// a deposit that reverses an earlier withdraw (or vice versa) restores the
// actor's balance exactly.
type Ledger interface {
	// Balance returns the actor's current balance.
	Balance(ctx context.Context, actorID string) (decimal.Decimal, error)

	// Withdraw removes amount from the actor's balance. Returns
	// ErrInsufficientFunds when the balance is too low.
	Withdraw(ctx context.Context, actorID string, amount decimal.Decimal) error

	// Deposit adds amount to the actor's balance.
	Deposit(ctx context.Context, actorID string, amount decimal.Decimal) error
}
