package connectors

import (
	"context"
	"time"
)

// PlaceOrderRequest is the exchange-neutral order submission payload. Symbol
// casing and wire formats are connector-internal.
type PlaceOrderRequest struct {
	Symbol        string
	Side          string // model.OrderSideBuy / model.OrderSideSell
	OrderType     string // model.OrderType*
	Quantity      float64
	Price         *float64
	StopPrice     *float64
	ClientOrderID string
	ReduceOnly    bool
}

// PlaceOrderResult carries what the exchange acknowledged for a submission.
type PlaceOrderResult struct {
	ExchangeOrderID string
	Status          string // normalized to model.OrderStatus* values
	FilledQty       float64
	AvgFillPrice    *float64
}

// OrderStatus is the authoritative exchange-side view of one order.
type OrderStatus struct {
	ExchangeOrderID string
	Status          string // normalized to model.OrderStatus* values
	FilledQty       float64
	AvgFillPrice    *float64
	UpdatedAt       time.Time
}

// Balance is one asset's account balance on the exchange.
type Balance struct {
	Asset     string
	Total     float64
	Available float64
}

// ExchangePosition is one open position as reported by the exchange.
type ExchangePosition struct {
	Symbol        string
	Side          string // model.PositionSideLong / Short
	Quantity      float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnl float64
	Leverage      float64
}

// Connector is the capability interface every exchange adapter implements.
// Each call passes the exchange's rate limiter before any network I/O and
// returns failures already classified as *ExchangeError.
type Connector interface {
	Name() string
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (*OrderStatus, error)
	GetBalance(ctx context.Context, asset string) (*Balance, error)
	GetOpenPositions(ctx context.Context) ([]ExchangePosition, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, marginType string) error
}
