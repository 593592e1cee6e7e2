package market

import (
	"fmt"

	"skymarket/internal/config"

	"github.com/shopspring/decimal"
)

// Quote is the outcome of applying a pricing policy to a trade. The trade
// settles at the pre-trade price; NewPrice and NewStock are the record
// state to commit if the trade goes through.
type Quote struct {
	ExecutedPrice decimal.Decimal
	TotalCost     decimal.Decimal
	NewPrice      decimal.Decimal
	NewStock      int64
}

// Policy computes the next price and stock for a trade event. It must be
// pure: no I/O, no shared state, the same inputs always produce the same
// quote. A *RejectedError return means the trade is refused outright.
type Policy interface {
	Apply(rec *MarketRecord, direction Direction, quantity int64) (Quote, error)
}

// SpreadPolicy is the default policy: buying pressure raises the price
// proportionally to quantity over a reference stock, selling lowers it
// symmetrically. The new price is rounded down to Scale decimal places and
// clamped to the record's bounds.
type SpreadPolicy struct {
	PressureK    decimal.Decimal
	StockRef     decimal.Decimal
	Scale        int32
	TradeAtBound bool
}

var _ Policy = (*SpreadPolicy)(nil)

// NewSpreadPolicy builds the policy from configuration.
func NewSpreadPolicy(cfg *config.Market) (*SpreadPolicy, error) {
	k, err := decimal.NewFromString(cfg.PressureK)
	if err != nil {
		return nil, fmt.Errorf("invalid pressure_k %q: %w", cfg.PressureK, err)
	}
	if cfg.StockRef <= 0 {
		return nil, fmt.Errorf("stock_reference must be positive, got %d", cfg.StockRef)
	}
	return &SpreadPolicy{
		PressureK:    k,
		StockRef:     decimal.NewFromInt(cfg.StockRef),
		Scale:        cfg.PriceScale,
		TradeAtBound: cfg.TradeAtBound,
	}, nil
}

// Apply implements Policy.
func (p *SpreadPolicy) Apply(rec *MarketRecord, direction Direction, quantity int64) (Quote, error) {
	if !rec.Enabled {
		return Quote{}, &RejectedError{Reason: fmt.Sprintf("item %s is not currently on offer", rec.ItemID)}
	}
	if quantity <= 0 {
		return Quote{}, &RejectedError{Reason: "quantity must be positive"}
	}

	qty := decimal.NewFromInt(quantity)
	pressure := p.PressureK.Mul(qty).Div(p.StockRef)

	var factor decimal.Decimal
	newStock := rec.Stock

	switch direction {
	case DirectionBuy:
		if rec.Bounded() {
			if quantity > rec.Stock {
				return Quote{}, &RejectedError{
					Reason: fmt.Sprintf("insufficient stock: want %d, have %d", quantity, rec.Stock),
				}
			}
			newStock = rec.Stock - quantity
		}
		if !p.TradeAtBound && rec.Price.GreaterThanOrEqual(rec.MaxPrice) {
			return Quote{}, &RejectedError{Reason: "price is at its ceiling"}
		}
		factor = decimal.NewFromInt(1).Add(pressure)

	case DirectionSell:
		// The market will not absorb more units in one trade than it
		// currently holds, so bounded stock caps the sell quantity too.
		if rec.Bounded() {
			if quantity > rec.Stock {
				return Quote{}, &RejectedError{
					Reason: fmt.Sprintf("market cannot absorb %d units, holds %d", quantity, rec.Stock),
				}
			}
			newStock = rec.Stock + quantity
		}
		if !p.TradeAtBound && rec.Price.LessThanOrEqual(rec.MinPrice) {
			return Quote{}, &RejectedError{Reason: "price is at its floor"}
		}
		factor = decimal.NewFromInt(1).Sub(pressure)

	default:
		return Quote{}, &RejectedError{Reason: fmt.Sprintf("unknown direction %q", direction)}
	}

	// Rounding is always down, so repeated buy/sell cycles can only leak
	// value into the house, never out of it.
	newPrice := clampPrice(rec.Price.Mul(factor).RoundDown(p.Scale), rec)

	executed := rec.Price
	return Quote{
		ExecutedPrice: executed,
		TotalCost:     executed.Mul(qty),
		NewPrice:      newPrice,
		NewStock:      newStock,
	}, nil
}

// recoverPrice relaxes a record's price toward its initial price by the
// given rate in [0, 1]. Used on market rotation.
func recoverPrice(rec *MarketRecord, rate decimal.Decimal, scale int32) decimal.Decimal {
	delta := rec.InitialPrice.Sub(rec.Price).Mul(rate)
	return clampPrice(rec.Price.Add(delta).RoundDown(scale), rec)
}

func clampPrice(price decimal.Decimal, rec *MarketRecord) decimal.Decimal {
	if price.LessThan(rec.MinPrice) {
		return rec.MinPrice
	}
	if price.GreaterThan(rec.MaxPrice) {
		return rec.MaxPrice
	}
	return price
}
