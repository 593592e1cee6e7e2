package models

import "gorm.io/gorm"

// TradeLog represents a committed trade in the audit log.
type TradeLog struct {
	gorm.Model
	TradeID       string `gorm:"uniqueIndex" json:"trade_id"`
	ActorID       string `gorm:"index" json:"actor_id"`
	ItemID        string `gorm:"index" json:"item_id"`
	Direction     string `json:"direction"` // "BUY" or "SELL"
	Quantity      int64  `json:"quantity"`
	Price         string `json:"price"`
	TotalCost     string `json:"total_cost"`
	RecordVersion uint64 `json:"record_version"`
	Timestamp     int64  `json:"timestamp"`
	IsSimulation  bool   `json:"is_simulation"`
}
