package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger is a process-local Ledger used for dry runs. Accounts start
// at the configured opening balance the first time they are touched.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	opening  decimal.Decimal
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an in-memory ledger. Every account begins with
// the given opening balance.
func NewMemoryLedger(opening decimal.Decimal) *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]decimal.Decimal),
		opening:  opening,
	}
}

func (m *MemoryLedger) balance(actorID string) decimal.Decimal {
	if b, ok := m.balances[actorID]; ok {
		return b
	}
	m.balances[actorID] = m.opening
	return m.opening
}

// Balance returns the actor's current balance.
func (m *MemoryLedger) Balance(_ context.Context, actorID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(actorID), nil
}

// Withdraw removes amount from the actor's balance, or returns
// ErrInsufficientFunds without mutating anything.
func (m *MemoryLedger) Withdraw(_ context.Context, actorID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.balance(actorID)
	if current.LessThan(amount) {
		return ErrInsufficientFunds
	}
	m.balances[actorID] = current.Sub(amount)
	return nil
}

// Deposit adds amount to the actor's balance.
func (m *MemoryLedger) Deposit(_ context.Context, actorID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[actorID] = m.balance(actorID).Add(amount)
	return nil
}
