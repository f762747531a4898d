package model

import "time"

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"
)

type Position struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Account    string     `gorm:"size:100;index" json:"account"`
	Exchange   string     `gorm:"size:50;index" json:"exchange"`
	Symbol     string     `gorm:"size:50;index" json:"symbol"`
	Side       string     `gorm:"size:10" json:"side"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	Leverage   float64    `json:"leverage"`
	Pnl        float64    `json:"pnl"`
	Status     string     `gorm:"size:50;not null;default:open" json:"status"`
	OrderID    *uint      `gorm:"index" json:"order_id,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// Notional is the position's current mark-to-market exposure.
func (p *Position) Notional(markPrice float64) float64 {
	return p.Quantity * markPrice
}
