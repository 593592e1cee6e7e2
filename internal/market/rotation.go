package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"skymarket/internal/config"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rotator refreshes the market on a schedule: it re-rolls which rotating
// items are on offer, relaxes prices toward their initial values, and
// resets the per-actor trade limits for the new period.
type Rotator struct {
	logger        *zap.Logger
	catalog       *Catalog
	engine        *Engine
	interval      time.Duration
	selectionSize int
	recoveryRate  decimal.Decimal
	scale         int32
	rng           *rand.Rand

	mu   sync.Mutex
	next time.Time
}

// NewRotator builds a rotator from configuration. A nil error with a nil
// rotator means rotation is disabled.
func NewRotator(logger *zap.Logger, cfg *config.Market, catalog *Catalog, engine *Engine) (*Rotator, error) {
	if cfg.Rotation.Interval <= 0 {
		return nil, nil
	}

	rate, err := decimal.NewFromString(cfg.Rotation.RecoveryRate)
	if err != nil {
		return nil, fmt.Errorf("invalid recovery_rate %q: %w", cfg.Rotation.RecoveryRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("recovery_rate must be in [0, 1], got %s", rate)
	}

	return &Rotator{
		logger:        logger.Named("rotator"),
		catalog:       catalog,
		engine:        engine,
		interval:      time.Duration(cfg.Rotation.Interval) * time.Second,
		selectionSize: cfg.Rotation.SelectionSize,
		recoveryRate:  rate,
		scale:         cfg.PriceScale,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// NextRefresh returns when the next rotation will happen, for display.
func (r *Rotator) NextRefresh() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

func (r *Rotator) setNext(t time.Time) {
	r.mu.Lock()
	r.next = t
	r.mu.Unlock()
}

// Run rotates the market on the configured interval until the context is
// cancelled.
func (r *Rotator) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.setNext(time.Now().Add(r.interval))
	r.logger.Info("Starting rotation loop", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Rotation loop stopped")
			return
		case <-ticker.C:
			r.Refresh()
			r.setNext(time.Now().Add(r.interval))
		}
	}
}

// Refresh performs one rotation pass. It goes through the normal
// compare-and-swap path so version monotonicity holds and concurrent
// trades are never clobbered; a record that keeps losing the race is left
// for the next rotation rather than fought over.
func (r *Rotator) Refresh() {
	snapshot := r.catalog.Snapshot()

	var rotating []*MarketRecord
	for _, rec := range snapshot {
		if rec.Rotating {
			rotating = append(rotating, rec)
		}
	}

	onOffer := r.pick(rotating)

	updated := 0
	for _, rec := range snapshot {
		enabled := rec.Enabled
		if rec.Rotating {
			_, enabled = onOffer[rec.ItemID]
		}
		if r.rotateRecord(rec.ItemID, enabled) {
			updated++
		}
	}

	r.engine.ResetLimits()

	r.logger.Info("Market rotated",
		zap.Int("rotating_pool", len(rotating)),
		zap.Int("on_offer", len(onOffer)),
		zap.Int("updated", updated),
	)
}

// pick selects which rotating items go on offer this period. A selection
// size of 0, or one at least as large as the pool, keeps everything on
// offer.
func (r *Rotator) pick(rotating []*MarketRecord) map[string]struct{} {
	onOffer := make(map[string]struct{}, len(rotating))
	if r.selectionSize <= 0 || r.selectionSize >= len(rotating) {
		for _, rec := range rotating {
			onOffer[rec.ItemID] = struct{}{}
		}
		return onOffer
	}

	for _, i := range r.rng.Perm(len(rotating))[:r.selectionSize] {
		onOffer[rotating[i].ItemID] = struct{}{}
	}
	return onOffer
}

// rotateRecord applies the rotation outcome to one record with a small
// retry budget against concurrent trades.
func (r *Rotator) rotateRecord(itemID string, enabled bool) bool {
	const maxAttempts = 3

	for i := 0; i < maxAttempts; i++ {
		rec, err := r.catalog.Get(itemID)
		if err != nil {
			return false
		}

		next := rec.clone()
		next.Enabled = enabled
		next.Price = recoverPrice(rec, r.recoveryRate, r.scale)

		if next.Price.Equal(rec.Price) && next.Enabled == rec.Enabled {
			return false // nothing to commit
		}
		if r.catalog.CompareAndSwap(itemID, rec.Version, next) {
			return true
		}
	}

	r.logger.Debug("Skipping contended record this rotation", zap.String("item", itemID))
	return false
}
