package gateway

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradegateway/src/alert"
	"tradegateway/src/connectors"
	"tradegateway/src/metrics"
	"tradegateway/src/model"
	"tradegateway/src/repository"
	"tradegateway/src/utils"
)

// SubmissionGuard lets the margin monitor block new leveraged submissions
// while an account is in the critical band. Reduce-only orders bypass the
// guard so liquidations always go through.
type SubmissionGuard interface {
	CheckSubmit(ctx context.Context, order *model.Order) error
}

// Gateway orchestrates idempotent order submission, cancellation, and status
// reconciliation across broker adapters. It is the sole owner of order state
// transitions and is safe to call concurrently.
type Gateway struct {
	orders     *repository.OrderRepository
	exceptions *repository.ExceptionRepository
	connectors map[string]connectors.Connector
	guard      SubmissionGuard
	config     Config
	stats      *metrics.Collector

	// overridable in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(orders *repository.OrderRepository, conns map[string]connectors.Connector, config Config) *Gateway {
	return &Gateway{
		orders:     orders,
		connectors: conns,
		config:     config,
		stats:      metrics.NewCollector(),
		sleep:      sleepCtx,
		now:        time.Now,
	}
}

// SetGuard installs the submission guard. Passing nil removes it.
func (g *Gateway) SetGuard(guard SubmissionGuard) {
	g.guard = guard
}

// SetCollector replaces the gateway's metrics collector, letting the caller
// share one collector across components.
func (g *Gateway) SetCollector(stats *metrics.Collector) {
	g.stats = stats
}

// Stats exposes the gateway's metrics collector.
func (g *Gateway) Stats() *metrics.Collector {
	return g.stats
}

// SetExceptionRepository enables persisted exception capture for exchange
// failures. Without it failures are only logged.
func (g *Gateway) SetExceptionRepository(exceptions *repository.ExceptionRepository) {
	g.exceptions = exceptions
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Submit places one order idempotently. Resubmitting the same
// (client_order_id, exchange) pair returns the existing order unchanged and
// never reaches the adapter a second time, which makes network retries safe.
func (g *Gateway) Submit(ctx context.Context, order *model.Order) (*model.Order, error) {
	if order.ClientOrderID == "" {
		order.ClientOrderID = utils.NewClientOrderID(g.config.ClientIDPrefix)
	}

	if err := g.Validate(order); err != nil {
		logger.WithFields(map[string]interface{}{
			"component":       "Gateway",
			"op":              "Submit",
			"client_order_id": order.ClientOrderID,
			"exchange":        order.Exchange,
		}).WithError(err).Warn("Order failed validation")
		return nil, err
	}

	// Idempotency pre-check. The unique index below is the authoritative
	// barrier; this read just avoids burning an insert in the common case.
	existing, err := g.orders.FindByClientID(ctx, order.ClientOrderID, order.Exchange)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logger.WithFields(map[string]interface{}{
			"component":       "Gateway",
			"op":              "Submit",
			"client_order_id": order.ClientOrderID,
			"exchange":        order.Exchange,
			"order_id":        existing.ID,
		}).Info("Duplicate submission, returning existing order")
		g.stats.Inc("orders_duplicate")
		return existing, nil
	}

	if g.guard != nil && !order.ReduceOnly {
		if err := g.guard.CheckSubmit(ctx, order); err != nil {
			return nil, err
		}
	}

	if g.config.CheckBalance {
		if err := g.checkBalance(ctx, order); err != nil {
			return nil, err
		}
	}

	order.Status = model.OrderStatusPending
	if err := g.orders.Insert(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			// Lost the insert race to a concurrent submission; the winner's
			// row is the single source of truth.
			winner, ferr := g.orders.FindByClientID(ctx, order.ClientOrderID, order.Exchange)
			if ferr != nil {
				return nil, ferr
			}
			if winner != nil {
				g.stats.Inc("orders_duplicate")
				return winner, nil
			}
		}
		return nil, err
	}

	return g.submitToExchange(ctx, order)
}

// checkBalance verifies quote-asset sufficiency when a price is known. It is
// best effort for market orders where the fill price is unknown upfront.
func (g *Gateway) checkBalance(ctx context.Context, order *model.Order) error {
	if order.Price == nil || order.Side != model.OrderSideBuy {
		return nil
	}

	conn := g.connectors[order.Exchange]
	balance, err := conn.GetBalance(ctx, g.config.QuoteAsset)
	if err != nil {
		return err
	}

	cost := order.Quantity * *order.Price
	if balance.Available < cost {
		return &ValidationError{
			Field:  "quantity",
			Reason: "insufficient balance for order cost",
		}
	}
	return nil
}

// submitToExchange performs the rate-limited adapter call with bounded
// retries on transient failures. Every retry reuses the same client order id,
// which is safe because the exchange dedupes on it.
func (g *Gateway) submitToExchange(ctx context.Context, order *model.Order) (*model.Order, error) {
	conn := g.connectors[order.Exchange]

	req := connectors.PlaceOrderRequest{
		Symbol:        order.Symbol,
		Side:          order.Side,
		OrderType:     order.OrderType,
		Quantity:      order.Quantity,
		Price:         order.Price,
		StopPrice:     order.StopPrice,
		ClientOrderID: order.ClientOrderID,
		ReduceOnly:    order.ReduceOnly,
	}

	var lastErr error
	backoff := g.config.RetryBase

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			g.stats.Inc("submit_retries")
			if err := g.sleep(ctx, backoff); err != nil {
				break
			}
			backoff *= 2
			if backoff > g.config.RetryMax {
				backoff = g.config.RetryMax
			}
		}

		result, err := conn.PlaceOrder(ctx, req)
		if err == nil {
			return g.applySubmitResult(ctx, order, result)
		}
		lastErr = err

		kind := connectors.KindOf(err)
		logger.WithFields(map[string]interface{}{
			"component":       "Gateway",
			"op":              "Submit",
			"client_order_id": order.ClientOrderID,
			"exchange":        order.Exchange,
			"attempt":         attempt,
			"kind":            kind,
		}).WithError(err).Warn("Exchange call failed")

		if kind != connectors.KindTransient {
			break
		}
	}

	order.LastError = lastErr.Error()

	alert.Capture(ctx, g.exceptions, "order_gateway", order.Exchange, "PlaceOrder", "error", lastErr,
		map[string]interface{}{
			"client_order_id": order.ClientOrderID,
			"symbol":          order.Symbol,
		})

	if connectors.KindOf(lastErr) == connectors.KindRejected {
		// Adapter-reported rejection is a definitive outcome.
		g.transition(order, model.OrderStatusRejected)
		g.stats.Inc("orders_rejected")
	}
	// Transport failures leave the order Pending with the recorded error,
	// eligible for resubmission under the same client order id.

	if uerr := g.orders.Update(ctx, order); uerr != nil {
		logger.WithError(uerr).Error("Failed to persist order after exchange failure")
	}

	return nil, lastErr
}

func (g *Gateway) applySubmitResult(ctx context.Context, order *model.Order, result *connectors.PlaceOrderResult) (*model.Order, error) {
	now := g.now().UTC()
	order.SubmittedAt = &now
	if result.ExchangeOrderID != "" && order.ExchangeOrderID == nil {
		order.ExchangeOrderID = &result.ExchangeOrderID
	}

	target := result.Status
	if target == "" {
		target = model.OrderStatusOpen
	}
	// Filled-on-arrival market orders pass through Open on the way to their
	// reported status so the lifecycle stays monotonic.
	if order.Status == model.OrderStatusPending && target != model.OrderStatusOpen && target != model.OrderStatusRejected {
		g.transition(order, model.OrderStatusOpen)
	}
	g.transition(order, target)

	if result.FilledQty > 0 {
		order.FilledQty = clampFill(result.FilledQty, order.Quantity)
	}
	if result.AvgFillPrice != nil {
		order.AvgFillPrice = result.AvgFillPrice
	}
	order.LastError = ""

	if err := g.orders.Update(ctx, order); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component":         "Gateway",
		"op":                "Submit",
		"order_id":          order.ID,
		"client_order_id":   order.ClientOrderID,
		"exchange":          order.Exchange,
		"exchange_order_id": order.ExchangeOrderID,
		"status":            order.Status,
	}).Info("Order submitted")

	g.stats.Inc("orders_submitted")
	return order, nil
}

// transition applies one state-machine step. Illegal transitions are logged
// and rejected, never silently applied.
func (g *Gateway) transition(order *model.Order, to string) bool {
	if order.Status == to {
		return true
	}
	if !model.CanTransition(order.Status, to) {
		logger.WithFields(map[string]interface{}{
			"component": "Gateway",
			"order_id":  order.ID,
			"from":      order.Status,
			"to":        to,
		}).Error("Rejected illegal order state transition")
		return false
	}
	order.Status = to
	if model.IsTerminalStatus(to) {
		now := g.now().UTC()
		order.ClosedAt = &now
	}
	return true
}

// Cancel requests exchange-side cancellation and transitions the order to
// Cancelled on success.
func (g *Gateway) Cancel(ctx context.Context, orderID uint) (*model.Order, error) {
	order, err := g.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if model.IsTerminalStatus(order.Status) {
		return nil, ErrInvalidState
	}
	if order.ExchangeOrderID == nil {
		// Never reached the exchange; nothing to cancel remotely.
		return nil, ErrInvalidState
	}

	conn, ok := g.connectors[order.Exchange]
	if !ok {
		return nil, ErrInvalidState
	}

	if err := conn.CancelOrder(ctx, order.Symbol, *order.ExchangeOrderID); err != nil {
		alert.Capture(ctx, g.exceptions, "order_gateway", order.Exchange, "CancelOrder", "error", err,
			map[string]interface{}{"order_id": order.ID})
		return nil, err
	}

	g.transition(order, model.OrderStatusCancelled)
	if err := g.orders.Update(ctx, order); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"component": "Gateway",
		"op":        "Cancel",
		"order_id":  order.ID,
		"exchange":  order.Exchange,
	}).Info("Order cancelled")

	g.stats.Inc("orders_cancelled")
	return order, nil
}

// GetStatus returns the locally persisted order.
func (g *Gateway) GetStatus(ctx context.Context, orderID uint) (*model.Order, error) {
	order, err := g.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	return order, nil
}

// SyncStatus polls the adapter for the authoritative order state and
// reconciles status and filled quantity locally. Used to recover from missed
// fill notifications.
func (g *Gateway) SyncStatus(ctx context.Context, orderID uint) (*model.Order, error) {
	order, err := g.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrNotFound
	}
	if model.IsTerminalStatus(order.Status) || order.ExchangeOrderID == nil {
		return order, nil
	}

	conn, ok := g.connectors[order.Exchange]
	if !ok {
		return nil, ErrInvalidState
	}

	status, err := conn.GetOrderStatus(ctx, order.Symbol, *order.ExchangeOrderID)
	if err != nil {
		return nil, err
	}

	changed := false
	if status.FilledQty > order.FilledQty {
		order.FilledQty = clampFill(status.FilledQty, order.Quantity)
		changed = true
	}
	if status.AvgFillPrice != nil {
		order.AvgFillPrice = status.AvgFillPrice
		changed = true
	}
	if status.Status != order.Status && g.transition(order, status.Status) {
		changed = true
	}

	if changed {
		if err := g.orders.Update(ctx, order); err != nil {
			return nil, err
		}
		logger.WithFields(map[string]interface{}{
			"component":  "Gateway",
			"op":         "SyncStatus",
			"order_id":   order.ID,
			"status":     order.Status,
			"filled_qty": order.FilledQty,
		}).Info("Order reconciled from exchange")
	}

	return order, nil
}

// SyncAll reconciles every non-terminal order that has reached the exchange.
func (g *Gateway) SyncAll(ctx context.Context) (int, error) {
	orders, err := g.orders.FindActive(ctx)
	if err != nil {
		return 0, err
	}

	synced := 0
	for i := range orders {
		if _, err := g.SyncStatus(ctx, orders[i].ID); err != nil {
			logger.WithFields(map[string]interface{}{
				"component": "Gateway",
				"op":        "SyncAll",
				"order_id":  orders[i].ID,
			}).WithError(err).Warn("Failed to sync order, continuing")
			continue
		}
		synced++
	}

	g.stats.Add("orders_synced", int64(synced))
	return synced, nil
}

func clampFill(filled, requested float64) float64 {
	if filled > requested {
		logger.WithFields(map[string]interface{}{
			"component": "Gateway",
			"filled":    filled,
			"requested": requested,
		}).Warn("Exchange reported fill above requested quantity, clamping")
		return requested
	}
	return filled
}
