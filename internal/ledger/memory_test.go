package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	ml := NewMemoryLedger(decimal.NewFromInt(100))

	// Fresh accounts start at the opening balance.
	balance, err := ml.Balance(ctx, "steve")
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	// Withdraw then deposit leaves the balance where it started.
	assert.NoError(t, ml.Withdraw(ctx, "steve", decimal.NewFromInt(30)))
	assert.NoError(t, ml.Deposit(ctx, "steve", decimal.NewFromInt(30)))
	balance, err = ml.Balance(ctx, "steve")
	assert.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
}

func TestMemoryLedger_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	ml := NewMemoryLedger(decimal.NewFromInt(10))

	err := ml.Withdraw(ctx, "steve", decimal.NewFromInt(11))

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	// A refused withdraw must not touch the balance.
	balance, balErr := ml.Balance(ctx, "steve")
	assert.NoError(t, balErr)
	assert.True(t, balance.Equal(decimal.NewFromInt(10)))
}
