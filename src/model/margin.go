package model

import "time"

const (
	MarginTypeCross    = "cross"
	MarginTypeIsolated = "isolated"
)

// MarginState is one per-account leverage/exposure snapshot computed by the
// margin monitor. HealthRatio is on a 0-100 scale where higher means closer
// to forced liquidation. A row is only written together with the price
// timestamp that fed the computation.
type MarginState struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Account         string    `gorm:"size:100;not null;index" json:"account"`
	Exchange        string    `gorm:"size:50;not null;index" json:"exchange"`
	TotalCollateral float64   `json:"total_collateral"`
	TotalNotional   float64   `json:"total_notional"`
	HealthRatio     float64   `json:"health_ratio"`
	Leverage        float64   `json:"leverage"`
	MaxLeverage     float64   `json:"max_leverage"`
	LiquidationRisk bool      `json:"liquidation_risk"`
	PriceTime       time.Time `json:"price_time"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
	CreatedAt       time.Time `json:"created_at"`
}

func (MarginState) TableName() string {
	return "margin_states"
}
