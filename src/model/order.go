package model

import "time"

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

const (
	OrderTypeMarket     = "market"
	OrderTypeLimit      = "limit"
	OrderTypeStopLoss   = "stop_loss"
	OrderTypeStopLimit  = "stop_limit"
	OrderTypeTakeProfit = "take_profit"
)

const (
	OrderStatusPending         = "pending"
	OrderStatusOpen            = "open"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCancelled       = "cancelled"
	OrderStatusRejected        = "rejected"
	OrderStatusExpired         = "expired"
)

// Order represents one trading intent and its exchange-side lifecycle.
// (client_order_id, exchange) is the idempotency key and is enforced by a
// composite unique index at the storage layer, not only in process.
type Order struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	ClientOrderID string `gorm:"size:100;not null;uniqueIndex:idx_client_order_exchange" json:"client_order_id"`
	Exchange      string `gorm:"size:50;not null;uniqueIndex:idx_client_order_exchange" json:"exchange"`

	// Assigned by the exchange once the order is accepted. Set at most once.
	ExchangeOrderID *string `gorm:"size:100;index" json:"exchange_order_id,omitempty"`

	Account   string `gorm:"size:100;index" json:"account"`
	Symbol    string `gorm:"size:50;not null;index" json:"symbol"`
	Side      string `gorm:"size:10;not null" json:"side"`
	OrderType string `gorm:"size:20;not null" json:"order_type"`
	Status    string `gorm:"size:50;not null;default:pending" json:"status"`

	Quantity     float64  `json:"quantity"`
	FilledQty    float64  `json:"filled_qty"`
	Price        *float64 `json:"price,omitempty"`
	StopPrice    *float64 `json:"stop_price,omitempty"`
	AvgFillPrice *float64 `json:"avg_fill_price,omitempty"`

	StrategyTag *string `gorm:"size:100;index" json:"strategy_tag,omitempty"`
	ReduceOnly  bool    `json:"reduce_only"`

	// Last transport/exchange error observed for this order, kept for
	// operator diagnosis and resubmission decisions.
	LastError string `gorm:"type:text" json:"last_error,omitempty"`

	Metadata string `gorm:"type:text" json:"metadata,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminalStatus(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether moving an order from one status to another is
// allowed by the lifecycle: pending -> {open, rejected}; open -> {partially_filled,
// filled, cancelled, expired}; partially_filled may repeat before closing out.
// Terminal statuses never transition again.
func CanTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	switch from {
	case OrderStatusPending:
		return to == OrderStatusOpen || to == OrderStatusRejected
	case OrderStatusOpen:
		switch to {
		case OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
			return true
		}
	case OrderStatusPartiallyFilled:
		switch to {
		case OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
			return true
		}
	}
	return false
}
