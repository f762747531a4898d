package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"tradegateway/src/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func TestOrderRepositoryFindByClientID(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	createdAt := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	orderRows := func(returned ...model.Order) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "client_order_id", "exchange", "symbol", "side", "order_type", "status", "quantity", "created_at"})
		for _, order := range returned {
			rows.AddRow(order.ID, order.ClientOrderID, order.Exchange, order.Symbol, order.Side, order.OrderType, order.Status, order.Quantity, order.CreatedAt)
		}
		return rows
	}

	t.Run("found", func(t *testing.T) {
		stored := model.Order{
			ID:            7,
			ClientOrderID: "AT_1756300000000_deadbeef",
			Exchange:      "binance",
			Symbol:        "BTCUSDT",
			Side:          model.OrderSideBuy,
			OrderType:     model.OrderTypeMarket,
			Status:        model.OrderStatusOpen,
			Quantity:      0.5,
			CreatedAt:     createdAt,
		}

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE client_order_id = $1 AND exchange = $2 ORDER BY "orders"."id" LIMIT $3`)).
			WithArgs(stored.ClientOrderID, stored.Exchange, 1).
			WillReturnRows(orderRows(stored))

		order, err := repo.FindByClientID(context.Background(), stored.ClientOrderID, stored.Exchange)
		if err != nil {
			t.Fatalf("unexpected error fetching order: %v", err)
		}
		if order == nil || order.ID != 7 || order.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected order returned: %+v", order)
		}
	})

	t.Run("not found returns nil without error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE client_order_id = $1 AND exchange = $2 ORDER BY "orders"."id" LIMIT $3`)).
			WithArgs("AT_missing", "binance", 1).
			WillReturnRows(orderRows())

		order, err := repo.FindByClientID(context.Background(), "AT_missing", "binance")
		if err != nil {
			t.Fatalf("missing order must not be an error: %v", err)
		}
		if order != nil {
			t.Fatalf("expected nil for missing order, got %+v", order)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryFindActive(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	rows := sqlmock.NewRows([]string{"id", "client_order_id", "exchange", "status"}).
		AddRow(1, "AT_a", "binance", model.OrderStatusOpen).
		AddRow(2, "AT_b", "kraken", model.OrderStatusPartiallyFilled)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE status IN ($1,$2) ORDER BY id ASC`)).
		WithArgs(model.OrderStatusOpen, model.OrderStatusPartiallyFilled).
		WillReturnRows(rows)

	orders, err := repo.FindActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error fetching active orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 active orders, got %d", len(orders))
	}
	if orders[0].ID != 1 || orders[1].ID != 2 {
		t.Fatalf("active orders not returned in id order: %+v", orders)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestOrderRepositoryFindLatestDefaultsLimit(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &OrderRepository{db: mockDB}

	rows := sqlmock.NewRows([]string{"id", "client_order_id", "exchange"}).
		AddRow(9, "AT_z", "binance")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" ORDER BY id DESC LIMIT $1`)).
		WithArgs(20).
		WillReturnRows(rows)

	orders, err := repo.FindLatest(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error fetching latest orders: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != 9 {
		t.Fatalf("unexpected latest orders: %+v", orders)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
