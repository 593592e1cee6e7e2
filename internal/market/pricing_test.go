package market

import (
	"testing"

	"skymarket/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func testPolicy(t *testing.T) *SpreadPolicy {
	policy, err := NewSpreadPolicy(&config.Market{
		PressureK:    "0.2",
		StockRef:     10,
		PriceScale:   2,
		TradeAtBound: true,
	})
	assert.NoError(t, err)
	return policy
}

func swordRecord() *MarketRecord {
	return &MarketRecord{
		ItemID:       "sword",
		Price:        decimal.RequireFromString("100"),
		InitialPrice: decimal.RequireFromString("100"),
		MinPrice:     decimal.RequireFromString("50"),
		MaxPrice:     decimal.RequireFromString("200"),
		Stock:        10,
		Enabled:      true,
		Version:      1,
	}
}

func TestSpreadPolicy_Buy_RaisesPrice(t *testing.T) {
	// Arrange
	policy := testPolicy(t)
	rec := swordRecord()

	// Act
	quote, err := policy.Apply(rec, DirectionBuy, 1)

	// Assert
	assert.NoError(t, err)
	// Executed at the pre-trade price; the new price carries the pressure.
	assert.True(t, quote.ExecutedPrice.Equal(decimal.RequireFromString("100")), "executed price %s", quote.ExecutedPrice)
	assert.True(t, quote.TotalCost.Equal(decimal.RequireFromString("100")))
	assert.True(t, quote.NewPrice.Equal(decimal.RequireFromString("102")), "new price %s", quote.NewPrice)
	assert.Equal(t, int64(9), quote.NewStock)
}

func TestSpreadPolicy_Sell_LowersPrice(t *testing.T) {
	// Arrange
	policy := testPolicy(t)
	rec := swordRecord()

	// Act
	quote, err := policy.Apply(rec, DirectionSell, 1)

	// Assert
	assert.NoError(t, err)
	assert.True(t, quote.ExecutedPrice.Equal(decimal.RequireFromString("100")))
	assert.True(t, quote.NewPrice.Equal(decimal.RequireFromString("98")), "new price %s", quote.NewPrice)
	assert.Equal(t, int64(11), quote.NewStock)
}

func TestSpreadPolicy_Buy_InsufficientStock(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()
	rec.Stock = 3

	_, err := policy.Apply(rec, DirectionBuy, 4)

	var rej *RejectedError
	assert.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "insufficient stock")
}

func TestSpreadPolicy_Sell_MoreThanMarketHolds(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()
	rec.Stock = 9

	_, err := policy.Apply(rec, DirectionSell, 11)

	var rej *RejectedError
	assert.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "cannot absorb")
}

func TestSpreadPolicy_UnboundedStock(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()
	rec.Stock = StockUnbounded

	quote, err := policy.Apply(rec, DirectionBuy, 1000)

	assert.NoError(t, err)
	assert.Equal(t, StockUnbounded, quote.NewStock)
	// A huge buy clamps at the ceiling instead of running away.
	assert.True(t, quote.NewPrice.Equal(rec.MaxPrice), "new price %s", quote.NewPrice)
}

func TestSpreadPolicy_PriceClampsAtBounds(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()
	rec.Price = decimal.RequireFromString("51")

	// A large sell would compute a price below the floor; it must clamp.
	quote, err := policy.Apply(rec, DirectionSell, 10)

	assert.NoError(t, err)
	assert.True(t, quote.NewPrice.Equal(rec.MinPrice), "new price %s", quote.NewPrice)
}

func TestSpreadPolicy_NoTradeAtCeiling(t *testing.T) {
	policy := testPolicy(t)
	policy.TradeAtBound = false
	rec := swordRecord()
	rec.Price = rec.MaxPrice

	_, err := policy.Apply(rec, DirectionBuy, 1)

	var rej *RejectedError
	assert.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "ceiling")
}

func TestSpreadPolicy_DisabledItem(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()
	rec.Enabled = false

	_, err := policy.Apply(rec, DirectionBuy, 1)

	var rej *RejectedError
	assert.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "not currently on offer")
}

func TestSpreadPolicy_RoundsDown(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()
	rec.Price = decimal.RequireFromString("99.99")

	// 99.99 * 1.02 = 101.9898 -> rounds down to 101.98, never up.
	quote, err := policy.Apply(rec, DirectionBuy, 1)

	assert.NoError(t, err)
	assert.True(t, quote.NewPrice.Equal(decimal.RequireFromString("101.98")), "new price %s", quote.NewPrice)
}

func TestSpreadPolicy_Deterministic(t *testing.T) {
	policy := testPolicy(t)
	rec := swordRecord()

	first, err1 := policy.Apply(rec, DirectionBuy, 3)
	second, err2 := policy.Apply(rec, DirectionBuy, 3)

	assert.NoError(t, err1)
	assert.NoError(t, err2)
	assert.True(t, first.NewPrice.Equal(second.NewPrice))
	assert.Equal(t, first.NewStock, second.NewStock)
}

func TestRecoverPrice_MovesTowardInitial(t *testing.T) {
	rec := swordRecord()
	rec.Price = decimal.RequireFromString("140")

	recovered := recoverPrice(rec, decimal.RequireFromString("0.5"), 2)

	// Halfway back from 140 toward 100.
	assert.True(t, recovered.Equal(decimal.RequireFromString("120")), "recovered %s", recovered)
}

func TestRecoverPrice_FullRate_RestoresInitial(t *testing.T) {
	rec := swordRecord()
	rec.Price = decimal.RequireFromString("53.17")

	recovered := recoverPrice(rec, decimal.NewFromInt(1), 2)

	assert.True(t, recovered.Equal(rec.InitialPrice), "recovered %s", recovered)
}
