package gateway

import (
	"strings"

	"tradegateway/src/model"
)

func validSide(side string) bool {
	return side == model.OrderSideBuy || side == model.OrderSideSell
}

func validOrderType(orderType string) bool {
	switch orderType {
	case model.OrderTypeMarket, model.OrderTypeLimit, model.OrderTypeStopLoss,
		model.OrderTypeStopLimit, model.OrderTypeTakeProfit:
		return true
	}
	return false
}

func needsLimitPrice(orderType string) bool {
	return orderType == model.OrderTypeLimit || orderType == model.OrderTypeStopLimit
}

func needsStopPrice(orderType string) bool {
	switch orderType {
	case model.OrderTypeStopLoss, model.OrderTypeStopLimit, model.OrderTypeTakeProfit:
		return true
	}
	return false
}

// Validate runs the pure pre-trade checks. It never has side effects and is
// called both by Submit and by callers wanting a pre-flight check.
func (g *Gateway) Validate(order *model.Order) error {
	if strings.TrimSpace(order.Symbol) == "" {
		return &ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if strings.TrimSpace(order.ClientOrderID) == "" {
		return &ValidationError{Field: "client_order_id", Reason: "must not be empty"}
	}
	if strings.TrimSpace(order.Exchange) == "" {
		return &ValidationError{Field: "exchange", Reason: "must not be empty"}
	}
	if _, ok := g.connectors[order.Exchange]; !ok {
		return &ValidationError{Field: "exchange", Reason: "no adapter configured for " + order.Exchange}
	}
	if !validSide(order.Side) {
		return &ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if !validOrderType(order.OrderType) {
		return &ValidationError{Field: "order_type", Reason: "unsupported order type " + order.OrderType}
	}
	if order.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if needsLimitPrice(order.OrderType) && (order.Price == nil || *order.Price <= 0) {
		return &ValidationError{Field: "price", Reason: "limit price required for " + order.OrderType}
	}
	if needsStopPrice(order.OrderType) && (order.StopPrice == nil || *order.StopPrice <= 0) {
		return &ValidationError{Field: "stop_price", Reason: "stop price required for " + order.OrderType}
	}
	if g.config.MaxOrderQty > 0 && order.Quantity > g.config.MaxOrderQty {
		return &ValidationError{Field: "quantity", Reason: "exceeds configured maximum order size"}
	}
	return nil
}
