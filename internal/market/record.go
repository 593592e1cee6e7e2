package market

import (
	"fmt"
	"time"

	"skymarket/internal/models"

	"github.com/shopspring/decimal"
)

// Direction is the side of a trade from the actor's point of view.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// StockUnbounded marks a record whose stock is not tracked.
const StockUnbounded int64 = -1

// MarketRecord is the per-item market state. Records held by the catalog
// are immutable; a mutation clones the record and commits the clone through
// Catalog.CompareAndSwap, which is the only write path.
type MarketRecord struct {
	ItemID       string
	Price        decimal.Decimal
	InitialPrice decimal.Decimal
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
	Stock        int64
	BuyLimit     int
	SellLimit    int
	Rotating     bool
	Enabled      bool
	Version      uint64
	LastUpdated  time.Time
}

// Bounded reports whether the record tracks scarcity.
func (r *MarketRecord) Bounded() bool {
	return r.Stock != StockUnbounded
}

func (r *MarketRecord) clone() *MarketRecord {
	c := *r
	return &c
}

// toRow converts the record to its durable form.
func (r *MarketRecord) toRow() models.MarketRecordRow {
	return models.MarketRecordRow{
		ItemID:       r.ItemID,
		Price:        r.Price.String(),
		InitialPrice: r.InitialPrice.String(),
		MinPrice:     r.MinPrice.String(),
		MaxPrice:     r.MaxPrice.String(),
		Stock:        r.Stock,
		BuyLimit:     r.BuyLimit,
		SellLimit:    r.SellLimit,
		Rotating:     r.Rotating,
		Enabled:      r.Enabled,
		Version:      r.Version,
		LastUpdated:  r.LastUpdated.UnixMilli(),
	}
}

// recordFromRow parses a persisted row back into a record. A row that does
// not parse means the durable state is damaged, so the error wraps
// ErrCorruptState.
func recordFromRow(row *models.MarketRecordRow) (*MarketRecord, error) {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable price %q", ErrCorruptState, row.ItemID, row.Price)
	}
	initial, err := decimal.NewFromString(row.InitialPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable initial price %q", ErrCorruptState, row.ItemID, row.InitialPrice)
	}
	minPrice, err := decimal.NewFromString(row.MinPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable min price %q", ErrCorruptState, row.ItemID, row.MinPrice)
	}
	maxPrice, err := decimal.NewFromString(row.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable max price %q", ErrCorruptState, row.ItemID, row.MaxPrice)
	}

	rec := &MarketRecord{
		ItemID:       row.ItemID,
		Price:        price,
		InitialPrice: initial,
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		Stock:        row.Stock,
		BuyLimit:     row.BuyLimit,
		SellLimit:    row.SellLimit,
		Rotating:     row.Rotating,
		Enabled:      row.Enabled,
		Version:      row.Version,
		LastUpdated:  time.UnixMilli(row.LastUpdated),
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// validate checks the record invariants that must hold for any record
// entering the catalog.
func (r *MarketRecord) validate() error {
	if r.ItemID == "" {
		return fmt.Errorf("%w: record with empty item id", ErrCorruptState)
	}
	if !r.MinPrice.IsPositive() {
		return fmt.Errorf("%w: item %s min price must be positive", ErrCorruptState, r.ItemID)
	}
	if r.MinPrice.GreaterThan(r.MaxPrice) {
		return fmt.Errorf("%w: item %s min price exceeds max price", ErrCorruptState, r.ItemID)
	}
	if r.Price.LessThan(r.MinPrice) || r.Price.GreaterThan(r.MaxPrice) {
		return fmt.Errorf("%w: item %s price %s outside [%s, %s]", ErrCorruptState,
			r.ItemID, r.Price, r.MinPrice, r.MaxPrice)
	}
	if r.Stock < StockUnbounded {
		return fmt.Errorf("%w: item %s has negative stock %d", ErrCorruptState, r.ItemID, r.Stock)
	}
	return nil
}

// TradeRequest describes one buy or sell attempt. It is transient and never
// persisted.
type TradeRequest struct {
	ActorID   string
	ItemID    string
	Direction Direction
	Quantity  int64

	// PriceLimit is an optional actor-specified bound on the executed
	// price: a ceiling for buys, a floor for sells. Nil means no limit.
	PriceLimit *decimal.Decimal
}

// TradeResult is the outcome of Execute. When Accepted is false,
// FailureReason carries the business-rule refusal for display.
type TradeResult struct {
	Accepted      bool
	TradeID       string
	ExecutedPrice decimal.Decimal
	TotalCost     decimal.Decimal
	NewVersion    uint64
	FailureReason string
}
