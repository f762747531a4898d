package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketCandle is one finalized OHLCV bucket for a symbol on an exchange.
// Only buckets the upstream feed has flagged closed are ever persisted, and a
// persisted row is never revised; (symbol, exchange, bucket_start) is unique.
type MarketCandle struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Symbol      string           `gorm:"size:50;not null;uniqueIndex:idx_candle_bucket" json:"symbol"`
	Exchange    string           `gorm:"size:50;not null;uniqueIndex:idx_candle_bucket" json:"exchange"`
	Interval    string           `gorm:"size:10;not null;default:1m" json:"interval"`
	BucketStart time.Time        `gorm:"not null;uniqueIndex:idx_candle_bucket" json:"bucket_start"`
	Open        decimal.Decimal  `gorm:"type:decimal(30,10)" json:"open"`
	High        decimal.Decimal  `gorm:"type:decimal(30,10)" json:"high"`
	Low         decimal.Decimal  `gorm:"type:decimal(30,10)" json:"low"`
	Close       decimal.Decimal  `gorm:"type:decimal(30,10)" json:"close"`
	Volume      decimal.Decimal  `gorm:"type:decimal(30,10)" json:"volume"`
	QuoteVolume *decimal.Decimal `gorm:"type:decimal(30,10)" json:"quote_volume,omitempty"`
	TradeCount  *int64           `json:"trade_count,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (MarketCandle) TableName() string {
	return "market_candles"
}
