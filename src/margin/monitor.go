package margin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradegateway/src/alert"
	"tradegateway/src/connectors"
	"tradegateway/src/gateway"
	"tradegateway/src/metrics"
	"tradegateway/src/model"
	"tradegateway/src/repository"
	"tradegateway/src/utils"
)

// ErrStaleData signals that prices feeding an evaluation were older than the
// staleness bound. The tick is skipped and an alert raised instead of acting
// on outdated data.
var ErrStaleData = errors.New("market prices are stale, evaluation skipped")

// OrderSubmitter is the slice of the order gateway the monitor uses. The
// monitor never mutates an order directly; forced liquidations go through
// Submit like any other order.
type OrderSubmitter interface {
	Submit(ctx context.Context, order *model.Order) (*model.Order, error)
}

// Monitor recomputes per-account margin health on a fixed interval and
// reacts through configurable thresholds: warn, block new leveraged orders,
// or force liquidation through the order gateway.
type Monitor struct {
	positions  *repository.PositionRepository
	candles    *repository.CandleRepository
	margins    *repository.MarginRepository
	submitter  OrderSubmitter
	conns      map[string]connectors.Connector
	sink       alert.Sink
	config     Config
	log        *logger.Entry
	stats      *metrics.Collector
	exceptions *repository.ExceptionRepository

	mu      sync.Mutex
	blocked map[string]bool

	// overridable in tests
	now func() time.Time
}

func NewMonitor(
	positions *repository.PositionRepository,
	candles *repository.CandleRepository,
	margins *repository.MarginRepository,
	submitter OrderSubmitter,
	conns map[string]connectors.Connector,
	sink alert.Sink,
	config Config,
) *Monitor {
	return &Monitor{
		positions: positions,
		candles:   candles,
		margins:   margins,
		submitter: submitter,
		conns:     conns,
		sink:      sink,
		config:    config,
		log:       logger.WithField("component", "MarginMonitor"),
		stats:     metrics.NewCollector(),
		blocked:   make(map[string]bool),
		now:       time.Now,
	}
}

// SetCollector replaces the monitor's metrics collector, letting the caller
// share one collector across components.
func (m *Monitor) SetCollector(stats *metrics.Collector) {
	m.stats = stats
}

// SetExceptionRepository enables persisted exception capture for failed
// forced liquidations.
func (m *Monitor) SetExceptionRepository(exceptions *repository.ExceptionRepository) {
	m.exceptions = exceptions
}

// CheckSubmit implements gateway.SubmissionGuard. Accounts in the critical
// band are refused new leveraged orders; reduce-only orders never reach the
// guard.
func (m *Monitor) CheckSubmit(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocked[order.Account] {
		return gateway.ErrSubmissionBlocked
	}
	return nil
}

// markPrice resolves the latest persisted candle close for a symbol and
// checks it against the staleness bound.
func (m *Monitor) markPrice(ctx context.Context, symbol, exchange string) (float64, time.Time, error) {
	candle, err := m.candles.QueryLatest(ctx, symbol, exchange)
	if err != nil {
		return 0, time.Time{}, err
	}
	if candle == nil {
		return 0, time.Time{}, fmt.Errorf("%w: no candle for %s on %s", ErrStaleData, symbol, exchange)
	}

	age := m.now().UTC().Sub(candle.BucketStart)
	if age > m.config.StalenessBound {
		return 0, time.Time{}, fmt.Errorf("%w: %s candle is %s old", ErrStaleData, symbol, age.Round(time.Second))
	}

	price, _ := candle.Close.Float64()
	return price, candle.BucketStart, nil
}

// Evaluate recomputes the margin state for one account on one exchange from
// open positions and latest persisted prices. It is pure with respect to its
// inputs; side effects happen only through alert emission and the gateway.
func (m *Monitor) Evaluate(ctx context.Context, account, exchange string) (*model.MarginState, error) {
	positions, err := m.positions.GetOpenPositions(ctx, account)
	if err != nil {
		return nil, err
	}

	var (
		totalNotional   float64
		totalCollateral float64
		oldestPrice     time.Time
		riskiest        *model.Position
		riskiestPrice   float64
	)

	for i := range positions {
		pos := &positions[i]
		if pos.Exchange != exchange {
			continue
		}

		price, priceTime, perr := m.markPrice(ctx, pos.Symbol, exchange)
		if perr != nil {
			if errors.Is(perr, ErrStaleData) {
				m.emitStale(ctx, account, exchange, pos.Symbol, perr)
				return nil, perr
			}
			return nil, perr
		}
		if oldestPrice.IsZero() || priceTime.Before(oldestPrice) {
			oldestPrice = priceTime
		}

		notional := pos.Notional(price)
		leverage := pos.Leverage
		if leverage < 1 {
			leverage = 1
		}

		// Initial margin plus unrealized PnL is what the account still owns
		// of the position; the rest is borrowed exposure.
		initialMargin := pos.Quantity * pos.EntryPrice / leverage
		pnl := (price - pos.EntryPrice) * pos.Quantity
		if pos.Side == model.PositionSideShort {
			pnl = -pnl
		}

		totalNotional += notional
		totalCollateral += initialMargin + pnl

		if riskiest == nil || notional > riskiest.Notional(riskiestPrice) {
			riskiest = pos
			riskiestPrice = price
		}
	}

	state := &model.MarginState{
		Account:         account,
		Exchange:        exchange,
		TotalCollateral: totalCollateral,
		TotalNotional:   totalNotional,
		MaxLeverage:     float64(m.config.MaxLeverage),
		PriceTime:       oldestPrice,
		EvaluatedAt:     m.now().UTC(),
	}

	if totalNotional > 0 {
		borrowed := totalNotional - totalCollateral
		if borrowed < 0 {
			borrowed = 0
		}
		state.HealthRatio = borrowed / totalNotional * 100
		if totalCollateral > 0 {
			state.Leverage = totalNotional / totalCollateral
		}
	}
	state.LiquidationRisk = state.HealthRatio >= m.config.LiquidateThreshold

	m.stats.Inc("margin_evaluations")
	m.react(ctx, state, riskiest)

	if err := m.margins.InsertState(ctx, state); err != nil {
		m.log.WithError(err).Warn("Failed to persist margin state")
	}

	return state, nil
}

// react applies the threshold bands. Exactly one band fires per evaluation;
// the liquidation band emits its critical and liquidation alerts before any
// order is submitted so the forced action is never silent.
func (m *Monitor) react(ctx context.Context, state *model.MarginState, riskiest *model.Position) {
	ratio := state.HealthRatio

	m.mu.Lock()
	m.blocked[state.Account] = ratio >= m.config.CriticalThreshold
	m.mu.Unlock()

	switch {
	case ratio >= m.config.LiquidateThreshold:
		m.sink.Emit(ctx, model.Alert{
			Kind:        model.AlertKindMarginCritical,
			Severity:    model.AlertSeverityCritical,
			Account:     state.Account,
			Exchange:    state.Exchange,
			HealthRatio: ratio,
			Message:     fmt.Sprintf("margin health %.1f%% at or above liquidation threshold %.1f%%", ratio, m.config.LiquidateThreshold),
		})
		m.liquidate(ctx, state, riskiest)

	case ratio >= m.config.CriticalThreshold:
		m.sink.Emit(ctx, model.Alert{
			Kind:        model.AlertKindMarginCritical,
			Severity:    model.AlertSeverityCritical,
			Account:     state.Account,
			Exchange:    state.Exchange,
			HealthRatio: ratio,
			Message:     fmt.Sprintf("margin health %.1f%% above critical threshold %.1f%%, blocking new leveraged orders", ratio, m.config.CriticalThreshold),
		})

	case ratio >= m.config.WarnThreshold:
		m.sink.Emit(ctx, model.Alert{
			Kind:        model.AlertKindMarginWarning,
			Severity:    model.AlertSeverityWarning,
			Account:     state.Account,
			Exchange:    state.Exchange,
			HealthRatio: ratio,
			Message:     fmt.Sprintf("margin health %.1f%% above warning threshold %.1f%%", ratio, m.config.WarnThreshold),
		})
	}
}

// liquidate submits a reduce-only market order against the largest position
// to cut exposure. It goes through the gateway like any other order and
// bypasses the submission guard by being reduce-only.
func (m *Monitor) liquidate(ctx context.Context, state *model.MarginState, riskiest *model.Position) {
	if riskiest == nil {
		m.log.WithField("account", state.Account).
			Warn("Liquidation threshold crossed with no position to liquidate")
		return
	}

	closeSide := model.OrderSideSell
	if riskiest.Side == model.PositionSideShort {
		closeSide = model.OrderSideBuy
	}

	m.sink.Emit(ctx, model.Alert{
		Kind:        model.AlertKindLiquidation,
		Severity:    model.AlertSeverityCritical,
		Account:     state.Account,
		Exchange:    state.Exchange,
		Symbol:      riskiest.Symbol,
		HealthRatio: state.HealthRatio,
		Message:     fmt.Sprintf("forced liquidation of %s %s qty %v", riskiest.Symbol, riskiest.Side, riskiest.Quantity),
	})

	order := &model.Order{
		ClientOrderID: utils.NewClientOrderID("LIQ"),
		Exchange:      state.Exchange,
		Account:       state.Account,
		Symbol:        riskiest.Symbol,
		Side:          closeSide,
		OrderType:     model.OrderTypeMarket,
		Quantity:      riskiest.Quantity,
		ReduceOnly:    true,
	}

	m.stats.Inc("margin_liquidations")
	if _, err := m.submitter.Submit(ctx, order); err != nil {
		alert.Capture(ctx, m.exceptions, "margin_monitor", state.Exchange, "Liquidate", "error", err,
			map[string]interface{}{
				"account": state.Account,
				"symbol":  riskiest.Symbol,
			})
		m.log.WithFields(map[string]interface{}{
			"account": state.Account,
			"symbol":  riskiest.Symbol,
		}).WithError(err).Error("Forced liquidation order failed")
		return
	}

	m.log.WithFields(map[string]interface{}{
		"account":         state.Account,
		"symbol":          riskiest.Symbol,
		"client_order_id": order.ClientOrderID,
	}).Warn("Forced liquidation order submitted")
}

func (m *Monitor) emitStale(ctx context.Context, account, exchange, symbol string, err error) {
	m.stats.Inc("margin_stale_ticks")
	m.sink.Emit(ctx, model.Alert{
		Kind:     model.AlertKindStaleData,
		Severity: model.AlertSeverityWarning,
		Account:  account,
		Exchange: exchange,
		Symbol:   symbol,
		Message:  err.Error(),
	})
}

// SetLeverage validates the requested leverage against configured and
// exchange maxima before forwarding to the adapter.
func (m *Monitor) SetLeverage(ctx context.Context, exchange, symbol string, leverage int, marginType string) error {
	if leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", leverage)
	}
	if leverage > m.config.MaxLeverage {
		return fmt.Errorf("leverage %d exceeds configured maximum %d", leverage, m.config.MaxLeverage)
	}
	if marginType != "" && marginType != model.MarginTypeCross && marginType != model.MarginTypeIsolated {
		return fmt.Errorf("unknown margin type %q", marginType)
	}

	conn, ok := m.conns[exchange]
	if !ok {
		return fmt.Errorf("no adapter configured for exchange %s", exchange)
	}

	m.log.WithFields(map[string]interface{}{
		"exchange":    exchange,
		"symbol":      symbol,
		"leverage":    leverage,
		"margin_type": marginType,
	}).Info("Setting leverage")

	return conn.SetLeverage(ctx, symbol, leverage, marginType)
}

// Run evaluates the given accounts on the configured interval until the
// context is cancelled.
func (m *Monitor) Run(ctx context.Context, accounts map[string]string) error {
	ticker := time.NewTicker(m.config.EvalInterval)
	defer ticker.Stop()

	m.log.WithField("accounts", len(accounts)).Info("Margin monitor loop started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Margin monitor loop stopped")
			return nil

		case <-ticker.C:
			for account, exchange := range accounts {
				if _, err := m.Evaluate(ctx, account, exchange); err != nil {
					if errors.Is(err, ErrStaleData) {
						continue
					}
					m.log.WithFields(map[string]interface{}{
						"account":  account,
						"exchange": exchange,
					}).WithError(err).Error("Margin evaluation failed")
				}
			}
		}
	}
}
