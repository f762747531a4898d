package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradegateway/src/database"
	"tradegateway/src/model"
)

// ErrDuplicateOrder signals that an order with the same (client_order_id,
// exchange) pair already exists. The unique index raises it, not in-process
// locking, so it also covers concurrent gateway instances.
var ErrDuplicateOrder = errors.New("order with this client_order_id and exchange already exists")

// OrderRepository handles read/write operations for orders.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main read/write database.
func NewOrderRepository() *OrderRepository {
	logger.WithField("component", "OrderRepository").
		Info("Creating new OrderRepository with MainDB")

	return &OrderRepository{
		db: database.MainDB,
	}
}

// NewOrderRepositoryWithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func NewOrderRepositoryWithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Insert creates a new order row. Returns ErrDuplicateOrder when the
// idempotency key is already taken.
func (r *OrderRepository) Insert(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":            "OrderRepository",
		"op":              "Insert",
		"client_order_id": order.ClientOrderID,
		"exchange":        order.Exchange,
		"symbol":          order.Symbol,
		"side":            order.Side,
		"qty":             order.Quantity,
	}).Debug("Inserting new order")

	err := r.db.WithContext(ctx).Create(order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(map[string]interface{}{
				"repo":            "OrderRepository",
				"op":              "Insert",
				"client_order_id": order.ClientOrderID,
				"exchange":        order.Exchange,
			}).Info("Duplicate idempotency key on insert")

			return ErrDuplicateOrder
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "Insert",
		}).WithError(err).Error("Failed to insert order")

		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Insert",
		"order_id": order.ID,
	}).Info("Order inserted successfully")

	return nil
}

// Update persists all fields of the given order.
func (r *OrderRepository) Update(
	ctx context.Context,
	order *model.Order,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Update",
		"order_id": order.ID,
		"status":   order.Status,
	}).Debug("Updating order")

	err := r.db.WithContext(ctx).Save(order).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "OrderRepository",
			"op":       "Update",
			"order_id": order.ID,
		}).WithError(err).Error("Failed to update order")

		return err
	}

	return nil
}

// FindByID fetches a single order by its primary ID.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByID(
	ctx context.Context,
	id uint,
) (*model.Order, error) {

	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "OrderRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Order not found")

			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")

		return nil, err
	}

	return &order, nil
}

// FindByClientID fetches an order by its idempotency key.
// Returns (nil, nil) if the order is not found.
func (r *OrderRepository) FindByClientID(
	ctx context.Context,
	clientOrderID string,
	exchange string,
) (*model.Order, error) {

	logger.WithFields(map[string]interface{}{
		"repo":            "OrderRepository",
		"op":              "FindByClientID",
		"client_order_id": clientOrderID,
		"exchange":        exchange,
	}).Debug("Fetching order by idempotency key")

	var order model.Order

	err := r.db.WithContext(ctx).
		Where("client_order_id = ? AND exchange = ?", clientOrderID, exchange).
		First(&order).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "FindByClientID",
			"client_order_id": clientOrderID,
			"exchange":        exchange,
		}).WithError(err).Error("Failed to fetch order by idempotency key")

		return nil, err
	}

	return &order, nil
}

// FindActive returns all orders that are neither terminal nor pending, i.e.
// orders whose exchange-side state may have moved without us noticing.
func (r *OrderRepository) FindActive(
	ctx context.Context,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{model.OrderStatusOpen, model.OrderStatusPartiallyFilled}).
		Order("id ASC").
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active orders")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "OrderRepository",
		"op":          "FindActive",
		"rows_return": len(orders),
	}).Debug("Active orders fetched")

	return orders, nil
}

// FindLatest returns the latest orders ordered from newest to oldest.
func (r *OrderRepository) FindLatest(
	ctx context.Context,
	limit int,
) ([]model.Order, error) {

	if limit <= 0 {
		limit = 20
	}

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "OrderRepository",
			"op":    "FindLatest",
			"limit": limit,
		}).WithError(err).Error("Failed to fetch latest orders")

		return nil, err
	}

	return orders, nil
}
