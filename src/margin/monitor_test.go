package margin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tradegateway/src/connectors"
	"tradegateway/src/gateway"
	"tradegateway/src/model"
	"tradegateway/src/repository"
)

// recorder captures alerts and submitted orders in arrival order so tests
// can assert that liquidation alerts precede the forced order.
type recorder struct {
	mu     sync.Mutex
	events []string
	alerts []model.Alert
	orders []*model.Order
}

func (r *recorder) Emit(_ context.Context, a model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "alert:"+a.Kind)
	r.alerts = append(r.alerts, a)
}

func (r *recorder) Submit(_ context.Context, order *model.Order) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "order:"+order.Symbol)
	r.orders = append(r.orders, order)
	return order, nil
}

var marginDBSeq int

func newMarginTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	marginDBSeq++
	dsn := fmt.Sprintf("file:margin_test_%d?mode=memory&cache=shared", marginDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Position{}, &model.MarketCandle{}, &model.MarginState{}, &model.Alert{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestMonitor(t *testing.T, db *gorm.DB) (*Monitor, *recorder) {
	t.Helper()
	rec := &recorder{}
	monitor := NewMonitor(
		repository.NewPositionRepositoryWithDB(db),
		repository.NewCandleRepositoryWithDB(db),
		repository.NewMarginRepositoryWithDB(db),
		rec,
		map[string]connectors.Connector{},
		rec,
		Config{
			EvalInterval:       time.Second,
			WarnThreshold:      70,
			CriticalThreshold:  80,
			LiquidateThreshold: 90,
			StalenessBound:     2 * time.Minute,
			MaxLeverage:        20,
		},
	)
	return monitor, rec
}

var evalTime = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

// seedPosition opens one long BTC position. With the mark price pinned to the
// entry price the health ratio works out to (1 - 1/leverage) * 100.
func seedPosition(t *testing.T, db *gorm.DB, leverage float64) {
	t.Helper()
	pos := &model.Position{
		Account:    "main",
		Exchange:   "binance",
		Symbol:     "BTCUSDT",
		Side:       model.PositionSideLong,
		Quantity:   1,
		EntryPrice: 50000,
		Leverage:   leverage,
		Status:     model.PositionStatusOpen,
		OpenedAt:   evalTime.Add(-time.Hour),
	}
	if err := db.Create(pos).Error; err != nil {
		t.Fatalf("failed to seed position: %v", err)
	}
}

func seedCandle(t *testing.T, db *gorm.DB, bucketStart time.Time, closePrice float64) {
	t.Helper()
	candle := &model.MarketCandle{
		Symbol:      "BTCUSDT",
		Exchange:    "binance",
		Interval:    "1m",
		BucketStart: bucketStart,
		Open:        decimal.NewFromFloat(closePrice),
		High:        decimal.NewFromFloat(closePrice),
		Low:         decimal.NewFromFloat(closePrice),
		Close:       decimal.NewFromFloat(closePrice),
		Volume:      decimal.NewFromInt(10),
	}
	if err := db.Create(candle).Error; err != nil {
		t.Fatalf("failed to seed candle: %v", err)
	}
}

func TestEvaluateWarnBand(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, rec := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	seedPosition(t, db, 4) // ratio 75
	seedCandle(t, db, evalTime.Add(-time.Minute), 50000)

	state, err := monitor.Evaluate(context.Background(), "main", "binance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.HealthRatio < 74.9 || state.HealthRatio > 75.1 {
		t.Fatalf("expected ratio ~75, got %v", state.HealthRatio)
	}
	if state.LiquidationRisk {
		t.Fatalf("warn band must not flag liquidation risk")
	}

	if len(rec.alerts) != 1 || rec.alerts[0].Kind != model.AlertKindMarginWarning {
		t.Fatalf("expected exactly one warning alert, got %+v", rec.alerts)
	}
	if len(rec.orders) != 0 {
		t.Fatalf("warn band must never submit orders")
	}

	// Warn band does not block submissions.
	if err := monitor.CheckSubmit(context.Background(), &model.Order{Account: "main"}); err != nil {
		t.Fatalf("warn band must not block submissions: %v", err)
	}

	var count int64
	db.Model(&model.MarginState{}).Count(&count)
	if count != 1 {
		t.Fatalf("margin state snapshot not persisted")
	}
}

func TestEvaluateCriticalBandBlocksSubmissions(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, rec := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	seedPosition(t, db, 5) // ratio 80
	seedCandle(t, db, evalTime.Add(-time.Minute), 50000)

	if _, err := monitor.Evaluate(context.Background(), "main", "binance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.alerts) != 1 || rec.alerts[0].Kind != model.AlertKindMarginCritical {
		t.Fatalf("expected one critical alert, got %+v", rec.alerts)
	}
	if len(rec.orders) != 0 {
		t.Fatalf("critical band must not liquidate")
	}

	err := monitor.CheckSubmit(context.Background(), &model.Order{Account: "main"})
	if !errors.Is(err, gateway.ErrSubmissionBlocked) {
		t.Fatalf("critical band must block new leveraged orders, got %v", err)
	}

	// Other accounts are unaffected.
	if err := monitor.CheckSubmit(context.Background(), &model.Order{Account: "other"}); err != nil {
		t.Fatalf("unrelated account must not be blocked: %v", err)
	}
}

func TestEvaluateLiquidationBand(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, rec := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	seedPosition(t, db, 20) // ratio 95
	seedCandle(t, db, evalTime.Add(-time.Minute), 50000)

	state, err := monitor.Evaluate(context.Background(), "main", "binance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.LiquidationRisk {
		t.Fatalf("expected liquidation risk flagged")
	}

	// Critical alert, then liquidation alert, then the forced order.
	want := []string{"alert:" + model.AlertKindMarginCritical, "alert:" + model.AlertKindLiquidation, "order:BTCUSDT"}
	if len(rec.events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, rec.events)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Fatalf("event %d = %q, want %q (all: %v)", i, rec.events[i], want[i], rec.events)
		}
	}

	order := rec.orders[0]
	if !order.ReduceOnly {
		t.Fatalf("forced liquidation must be reduce-only")
	}
	if order.OrderType != model.OrderTypeMarket {
		t.Fatalf("forced liquidation must be a market order, got %q", order.OrderType)
	}
	if order.Side != model.OrderSideSell {
		t.Fatalf("closing a long must sell, got %q", order.Side)
	}
	if order.Quantity != 1 {
		t.Fatalf("liquidation must close the full position, got %v", order.Quantity)
	}
	if !strings.HasPrefix(order.ClientOrderID, "LIQ_") {
		t.Fatalf("liquidation orders carry the LIQ prefix, got %q", order.ClientOrderID)
	}
}

func TestEvaluateRecoveryUnblocks(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, _ := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	seedPosition(t, db, 5) // ratio 80, blocked
	seedCandle(t, db, evalTime.Add(-time.Minute), 50000)

	if _, err := monitor.Evaluate(context.Background(), "main", "binance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := monitor.CheckSubmit(context.Background(), &model.Order{Account: "main"}); err == nil {
		t.Fatalf("expected account to be blocked")
	}

	// Deleverage: close out the position, next tick recomputes from storage.
	db.Model(&model.Position{}).Where("account = ?", "main").Update("leverage", 2)

	if _, err := monitor.Evaluate(context.Background(), "main", "binance"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := monitor.CheckSubmit(context.Background(), &model.Order{Account: "main"}); err != nil {
		t.Fatalf("recovered account must be unblocked: %v", err)
	}
}

func TestEvaluateStalePricesSkipTick(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, rec := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	seedPosition(t, db, 20)
	seedCandle(t, db, evalTime.Add(-10*time.Minute), 50000) // beyond the 2m bound

	_, err := monitor.Evaluate(context.Background(), "main", "binance")
	if !errors.Is(err, ErrStaleData) {
		t.Fatalf("expected ErrStaleData, got %v", err)
	}

	if len(rec.alerts) != 1 || rec.alerts[0].Kind != model.AlertKindStaleData {
		t.Fatalf("expected one stale-data alert, got %+v", rec.alerts)
	}
	if len(rec.orders) != 0 {
		t.Fatalf("stale ticks must never trigger forced actions")
	}

	var count int64
	db.Model(&model.MarginState{}).Count(&count)
	if count != 0 {
		t.Fatalf("stale ticks must not persist a margin snapshot")
	}
}

func TestEvaluateMissingCandleIsStale(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, rec := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	seedPosition(t, db, 20)
	// No candle seeded at all.

	_, err := monitor.Evaluate(context.Background(), "main", "binance")
	if !errors.Is(err, ErrStaleData) {
		t.Fatalf("expected ErrStaleData with no price history, got %v", err)
	}
	if len(rec.alerts) != 1 || rec.alerts[0].Kind != model.AlertKindStaleData {
		t.Fatalf("expected stale-data alert, got %+v", rec.alerts)
	}
}

func TestEvaluateNoPositions(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, rec := newTestMonitor(t, db)
	monitor.now = func() time.Time { return evalTime }

	state, err := monitor.Evaluate(context.Background(), "main", "binance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.HealthRatio != 0 || state.LiquidationRisk {
		t.Fatalf("flat account must be perfectly healthy: %+v", state)
	}
	if len(rec.alerts) != 0 || len(rec.orders) != 0 {
		t.Fatalf("flat account must trigger nothing")
	}
}

type leverageConn struct {
	connectors.Connector
	symbol   string
	leverage int
}

func (c *leverageConn) SetLeverage(_ context.Context, symbol string, leverage int, _ string) error {
	c.symbol = symbol
	c.leverage = leverage
	return nil
}

func TestSetLeverageValidation(t *testing.T) {
	db := newMarginTestDB(t)
	monitor, _ := newTestMonitor(t, db)

	conn := &leverageConn{}
	monitor.conns = map[string]connectors.Connector{"binance": conn}

	ctx := context.Background()

	if err := monitor.SetLeverage(ctx, "binance", "BTCUSDT", 0, ""); err == nil {
		t.Fatalf("leverage below 1 must be rejected")
	}
	if err := monitor.SetLeverage(ctx, "binance", "BTCUSDT", 21, ""); err == nil {
		t.Fatalf("leverage above the configured maximum must be rejected")
	}
	if err := monitor.SetLeverage(ctx, "binance", "BTCUSDT", 5, "portfolio"); err == nil {
		t.Fatalf("unknown margin type must be rejected")
	}
	if err := monitor.SetLeverage(ctx, "phemex", "BTCUSDT", 5, ""); err == nil {
		t.Fatalf("unknown exchange must be rejected")
	}

	if err := monitor.SetLeverage(ctx, "binance", "BTCUSDT", 5, model.MarginTypeIsolated); err != nil {
		t.Fatalf("valid request must be forwarded: %v", err)
	}
	if conn.symbol != "BTCUSDT" || conn.leverage != 5 {
		t.Fatalf("adapter did not receive the leverage request: %+v", conn)
	}
}
