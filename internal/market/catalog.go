package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"skymarket/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Catalog is the single source of truth for current prices and stock.
// Records live in memory and are flushed to the database on an interval
// and on shutdown; the hand-editable catalog document only seeds items
// that have never been persisted.
type Catalog struct {
	logger        *zap.Logger
	db            *gorm.DB
	path          string
	flushInterval time.Duration

	mu      sync.RWMutex
	records map[string]*MarketRecord
}

// NewCatalog creates a catalog backed by the given database. Load must be
// called before any other method.
func NewCatalog(logger *zap.Logger, db *gorm.DB, path string, flushInterval time.Duration) *Catalog {
	return &Catalog{
		logger:        logger.Named("catalog"),
		db:            db,
		path:          path,
		flushInterval: flushInterval,
		records:       make(map[string]*MarketRecord),
	}
}

// catalogItem is the schema of one entry in the catalog document. Prices
// are strings so operators' hand-edited values survive exactly.
type catalogItem struct {
	Price     string `mapstructure:"price"`
	MinPrice  string `mapstructure:"min_price"`
	MaxPrice  string `mapstructure:"max_price"`
	Stock     int64  `mapstructure:"stock"`
	BuyLimit  int    `mapstructure:"buy_limit"`
	SellLimit int    `mapstructure:"sell_limit"`
	Rotating  bool   `mapstructure:"rotating"`
	Disabled  bool   `mapstructure:"disabled"`
}

// Load reconstructs the catalog: defaults from the catalog document first,
// then persisted rows on top (persisted state wins, so a restart keeps the
// last flushed prices). Any unparseable input surfaces ErrCorruptState and
// the host must refuse to start.
func (c *Catalog) Load() error {
	defaults, err := c.loadDefaults()
	if err != nil {
		return err
	}

	var rows []models.MarketRecordRow
	if err := c.db.Find(&rows).Error; err != nil {
		return fmt.Errorf("%w: reading persisted records: %v", ErrCorruptState, err)
	}

	records := defaults
	for i := range rows {
		rec, err := recordFromRow(&rows[i])
		if err != nil {
			return err
		}
		// Keep operator-editable limits and rotation flags from the
		// document when the item is still listed there.
		if def, ok := records[rec.ItemID]; ok {
			rec.BuyLimit = def.BuyLimit
			rec.SellLimit = def.SellLimit
			rec.Rotating = def.Rotating
		}
		records[rec.ItemID] = rec
	}

	c.mu.Lock()
	c.records = records
	c.mu.Unlock()

	c.logger.Info("Catalog loaded",
		zap.Int("defaults", len(defaults)),
		zap.Int("persisted", len(rows)),
		zap.Int("total", len(records)),
	)
	return nil
}

// loadDefaults parses the hand-editable catalog document.
func (c *Catalog) loadDefaults() (map[string]*MarketRecord, error) {
	v := viper.New()
	v.SetConfigFile(c.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading catalog document %s: %v", ErrCorruptState, c.path, err)
	}

	var items map[string]catalogItem
	if err := v.UnmarshalKey("items", &items); err != nil {
		return nil, fmt.Errorf("%w: parsing catalog document %s: %v", ErrCorruptState, c.path, err)
	}

	records := make(map[string]*MarketRecord, len(items))
	now := time.Now()
	for itemID, item := range items {
		rec, err := recordFromItem(itemID, item, now)
		if err != nil {
			return nil, err
		}
		records[itemID] = rec
	}
	return records, nil
}

func recordFromItem(itemID string, item catalogItem, now time.Time) (*MarketRecord, error) {
	price, err := decimal.NewFromString(item.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable price %q", ErrCorruptState, itemID, item.Price)
	}
	minPrice, err := decimal.NewFromString(item.MinPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable min price %q", ErrCorruptState, itemID, item.MinPrice)
	}
	maxPrice, err := decimal.NewFromString(item.MaxPrice)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s has unparseable max price %q", ErrCorruptState, itemID, item.MaxPrice)
	}

	rec := &MarketRecord{
		ItemID:       itemID,
		Price:        price,
		InitialPrice: price,
		MinPrice:     minPrice,
		MaxPrice:     maxPrice,
		Stock:        item.Stock,
		BuyLimit:     item.BuyLimit,
		SellLimit:    item.SellLimit,
		Rotating:     item.Rotating,
		Enabled:      !item.Disabled,
		Version:      1,
		LastUpdated:  now,
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get returns the current record for an item, or ErrNotFound. The returned
// record is immutable; callers clone it before changing anything.
func (c *Catalog) Get(itemID string) (*MarketRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	return rec, nil
}

// CompareAndSwap atomically replaces the record for itemID if its current
// version equals expectedVersion. The committed record gets the next
// version number and a fresh LastUpdated. Returns false when another
// mutation landed first; the caller must re-read and retry.
func (c *Catalog) CompareAndSwap(itemID string, expectedVersion uint64, next *MarketRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.records[itemID]
	if !ok || cur.Version != expectedVersion {
		return false
	}

	committed := next.clone()
	committed.ItemID = itemID
	committed.Version = expectedVersion + 1
	committed.LastUpdated = time.Now()
	c.records[itemID] = committed
	return true
}

// Snapshot returns a point-in-time view of all records ordered by item id.
// Stored records are immutable, so copying the pointers under the read
// lock is consistent even while swaps continue.
func (c *Catalog) Snapshot() []*MarketRecord {
	c.mu.RLock()
	records := make([]*MarketRecord, 0, len(c.records))
	for _, rec := range c.records {
		records = append(records, rec)
	}
	c.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ItemID < records[j].ItemID
	})
	return records
}

// Flush writes the current snapshot to the database, upserting by item id.
func (c *Catalog) Flush() error {
	snapshot := c.Snapshot()
	for _, rec := range snapshot {
		row := rec.toRow()
		err := c.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"price", "initial_price", "min_price", "max_price",
				"stock", "buy_limit", "sell_limit", "rotating",
				"enabled", "version", "last_updated",
			}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to flush record %s: %w", rec.ItemID, err)
		}
	}
	c.logger.Debug("Catalog flushed", zap.Int("records", len(snapshot)))
	return nil
}

// Run flushes the catalog on the configured interval until the context is
// cancelled, then performs one final flush for a clean shutdown.
func (c *Catalog) Run(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	c.logger.Info("Starting flush loop", zap.Duration("interval", c.flushInterval))
	for {
		select {
		case <-ctx.Done():
			if err := c.Flush(); err != nil {
				c.logger.Error("Final flush failed", zap.Error(err))
			}
			c.logger.Info("Flush loop stopped")
			return
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				c.logger.Error("Periodic flush failed", zap.Error(err))
			}
		}
	}
}
