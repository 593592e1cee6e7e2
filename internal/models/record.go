package models

import "gorm.io/gorm"

// MarketRecordRow is the durable form of a single item's market state.
// Prices are stored as decimal strings so that flushing and reloading
// never loses precision.
type MarketRecordRow struct {
	gorm.Model
	ItemID       string `gorm:"uniqueIndex;not null"`
	Price        string `gorm:"not null"`
	InitialPrice string `gorm:"not null"`
	MinPrice     string `gorm:"not null"`
	MaxPrice     string `gorm:"not null"`
	Stock        int64  // -1 means unbounded
	BuyLimit     int
	SellLimit    int
	Rotating     bool
	Enabled      bool `gorm:"default:true"`
	Version      uint64
	LastUpdated  int64 // unix milliseconds of the last price mutation
}
