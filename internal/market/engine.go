package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"skymarket/internal/config"
	"skymarket/internal/ledger"
	"skymarket/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine executes trades against the catalog and the external ledger.
//
// The protocol per request: validate, read the record and its version, run
// the pricing policy, settle funds with the ledger, then commit the new
// record with a compare-and-swap. Losing the swap triggers an exact
// compensating ledger transfer and an internal retry against fresh state,
// bounded by the configured budget. The catalog is never mutated before
// ledger settlement succeeds, so an abandoned request leaves no partial
// state behind.
type Engine struct {
	logger     *zap.Logger
	catalog    *Catalog
	policy     Policy
	ledger     ledger.Ledger
	db         *gorm.DB
	maxRetries int
	simulation bool

	limits    limitCounter
	StartTime time.Time
}

// NewEngine creates a market engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, catalog *Catalog, policy Policy, lg ledger.Ledger, db *gorm.DB) *Engine {
	return &Engine{
		logger:     logger.Named("engine"),
		catalog:    catalog,
		policy:     policy,
		ledger:     lg,
		db:         db,
		maxRetries: cfg.Market.MaxRetries,
		simulation: cfg.Ledger.DryRun,
		limits:     limitCounter{counts: make(map[limitKey]int64)},
		StartTime:  time.Now(),
	}
}

// Init loads the catalog. It must complete before Execute is called;
// concurrent calls are safe only after Init returns.
func (e *Engine) Init() error {
	return e.catalog.Load()
}

// Shutdown flushes the catalog one last time.
func (e *Engine) Shutdown() error {
	return e.catalog.Flush()
}

// PeekPrice returns the current price of an item for display purposes.
func (e *Engine) PeekPrice(itemID string) (decimal.Decimal, error) {
	rec, err := e.catalog.Get(itemID)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.Price, nil
}

// Execute runs one trade to completion.
//
// Business-rule refusals (policy rejections, trade limits, price limits)
// come back as a TradeResult with Accepted=false and a nil error: the
// trade was refused but the system worked. Errors are reserved for caller
// misuse (ErrInvalidRequest, ErrNotFound), ledger trouble (*LedgerError)
// and a spent retry budget (ErrRetriesExhausted).
func (e *Engine) Execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		result, retry, err := e.attempt(ctx, req)
		if retry {
			e.logger.Debug("Lost the record race, retrying with fresh state",
				zap.String("item", req.ItemID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return result, err
	}

	e.logger.Warn("Trade abandoned under contention",
		zap.String("item", req.ItemID),
		zap.String("actor", req.ActorID),
		zap.Int("budget", e.maxRetries+1),
	)
	return nil, ErrRetriesExhausted
}

// attempt runs one optimistic pass. retry=true means the compare-and-swap
// lost and the ledger effect has already been compensated.
func (e *Engine) attempt(ctx context.Context, req TradeRequest) (result *TradeResult, retry bool, err error) {
	rec, err := e.catalog.Get(req.ItemID)
	if err != nil {
		return nil, false, err
	}

	quote, err := e.policy.Apply(rec, req.Direction, req.Quantity)
	if err != nil {
		var rej *RejectedError
		if errors.As(err, &rej) {
			return &TradeResult{Accepted: false, FailureReason: rej.Reason}, false, nil
		}
		return nil, false, err
	}

	if reason := e.checkLimits(rec, req); reason != "" {
		return &TradeResult{Accepted: false, FailureReason: reason}, false, nil
	}
	if reason := checkPriceLimit(req, quote.ExecutedPrice); reason != "" {
		return &TradeResult{Accepted: false, FailureReason: reason}, false, nil
	}

	// Settle funds first: the ledger call is the only cross-boundary
	// effect, and settling before the swap means a lost swap can be
	// undone with one exact compensating transfer.
	if err := e.settle(ctx, req, quote.TotalCost); err != nil {
		return nil, false, err
	}

	next := rec.clone()
	next.Price = quote.NewPrice
	next.Stock = quote.NewStock

	if !e.catalog.CompareAndSwap(req.ItemID, rec.Version, next) {
		if err := e.compensate(ctx, req, quote.TotalCost); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	e.limits.add(req.ActorID, req.ItemID, req.Direction, req.Quantity)

	result = &TradeResult{
		Accepted:      true,
		TradeID:       uuid.NewString(),
		ExecutedPrice: quote.ExecutedPrice,
		TotalCost:     quote.TotalCost,
		NewVersion:    rec.Version + 1,
	}
	e.audit(req, result)

	e.logger.Info("Trade committed",
		zap.String("trade_id", result.TradeID),
		zap.String("actor", req.ActorID),
		zap.String("item", req.ItemID),
		zap.String("direction", string(req.Direction)),
		zap.Int64("quantity", req.Quantity),
		zap.String("price", result.ExecutedPrice.String()),
		zap.Uint64("version", result.NewVersion),
	)
	return result, false, nil
}

// settle moves funds for the trade: buys withdraw from the actor, sells
// deposit to the actor.
func (e *Engine) settle(ctx context.Context, req TradeRequest, total decimal.Decimal) error {
	var err error
	if req.Direction == DirectionBuy {
		err = e.ledger.Withdraw(ctx, req.ActorID, total)
	} else {
		err = e.ledger.Deposit(ctx, req.ActorID, total)
	}
	if err != nil {
		return &LedgerError{Err: err}
	}
	return nil
}

// compensate reverses a settled ledger transfer after a lost swap. A failed
// compensation is the worst outcome the engine can hit, so it is logged
// loudly before being surfaced.
func (e *Engine) compensate(ctx context.Context, req TradeRequest, total decimal.Decimal) error {
	var err error
	if req.Direction == DirectionBuy {
		err = e.ledger.Deposit(ctx, req.ActorID, total)
	} else {
		err = e.ledger.Withdraw(ctx, req.ActorID, total)
	}
	if err != nil {
		e.logger.Error("Compensating ledger transfer failed; balances may be inconsistent",
			zap.String("actor", req.ActorID),
			zap.String("item", req.ItemID),
			zap.String("direction", string(req.Direction)),
			zap.String("amount", total.String()),
			zap.Error(err),
		)
		return &LedgerError{Err: fmt.Errorf("compensation failed: %w", err)}
	}
	return nil
}

// audit appends the committed trade to the durable log. Failing to write
// the audit row does not fail the trade: the catalog and ledger already
// agree.
func (e *Engine) audit(req TradeRequest, result *TradeResult) {
	row := models.TradeLog{
		TradeID:       result.TradeID,
		ActorID:       req.ActorID,
		ItemID:        req.ItemID,
		Direction:     string(req.Direction),
		Quantity:      req.Quantity,
		Price:         result.ExecutedPrice.String(),
		TotalCost:     result.TotalCost.String(),
		RecordVersion: result.NewVersion,
		Timestamp:     time.Now().Unix(),
		IsSimulation:  e.simulation,
	}
	if err := e.db.Create(&row).Error; err != nil {
		e.logger.Error("Failed to save trade audit record", zap.Error(err), zap.String("trade_id", result.TradeID))
	}
}

// ResetLimits clears all per-actor trade counters. Called on market
// rotation so limits apply per rotation period.
func (e *Engine) ResetLimits() {
	e.limits.reset()
}

// checkLimits enforces the record's per-actor buy/sell limits for the
// current rotation period. A limit of 0 means unlimited.
func (e *Engine) checkLimits(rec *MarketRecord, req TradeRequest) string {
	var limit int
	if req.Direction == DirectionBuy {
		limit = rec.BuyLimit
	} else {
		limit = rec.SellLimit
	}
	if limit <= 0 {
		return ""
	}

	used := e.limits.count(req.ActorID, req.ItemID, req.Direction)
	if used+req.Quantity > int64(limit) {
		if req.Direction == DirectionBuy {
			return fmt.Sprintf("buy limit reached for %s (%d per rotation)", req.ItemID, limit)
		}
		return fmt.Sprintf("sell limit reached for %s (%d per rotation)", req.ItemID, limit)
	}
	return ""
}

func checkPriceLimit(req TradeRequest, executed decimal.Decimal) string {
	if req.PriceLimit == nil {
		return ""
	}
	if req.Direction == DirectionBuy && executed.GreaterThan(*req.PriceLimit) {
		return fmt.Sprintf("price %s is above the requested ceiling %s", executed, req.PriceLimit)
	}
	if req.Direction == DirectionSell && executed.LessThan(*req.PriceLimit) {
		return fmt.Sprintf("price %s is below the requested floor %s", executed, req.PriceLimit)
	}
	return ""
}

func validateRequest(req TradeRequest) error {
	if req.ActorID == "" {
		return fmt.Errorf("%w: empty actor id", ErrInvalidRequest)
	}
	if req.ItemID == "" {
		return fmt.Errorf("%w: empty item id", ErrInvalidRequest)
	}
	if req.Direction != DirectionBuy && req.Direction != DirectionSell {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidRequest, req.Direction)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidRequest, req.Quantity)
	}
	return nil
}

// limitKey identifies one actor's counter for one item and direction.
type limitKey struct {
	actorID   string
	itemID    string
	direction Direction
}

// limitCounter tracks per-actor traded quantities for the current rotation
// period.
type limitCounter struct {
	mu     sync.Mutex
	counts map[limitKey]int64
}

func (l *limitCounter) count(actorID, itemID string, direction Direction) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[limitKey{actorID, itemID, direction}]
}

func (l *limitCounter) add(actorID, itemID string, direction Direction, qty int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[limitKey{actorID, itemID, direction}] += qty
}

func (l *limitCounter) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts = make(map[limitKey]int64)
}
