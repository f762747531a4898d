package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradegateway/src/database"
	"tradegateway/src/model"
)

// PositionRepository reads open positions for margin evaluation.
type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetOpenPositions returns all open positions for one account. Reads feeding
// trading decisions always hit the database; positions are never cached
// in-process.
func (r *PositionRepository) GetOpenPositions(
	ctx context.Context,
	account string,
) ([]model.Position, error) {

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("account = ? AND status = ?", account, model.PositionStatusOpen).
		Find(&positions).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "GetOpenPositions",
			"account": account,
		}).WithError(err).Error("Failed to fetch open positions")

		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "GetOpenPositions",
		"account":     account,
		"rows_return": len(positions),
	}).Debug("Open positions fetched")

	return positions, nil
}

// Upsert saves a position snapshot.
func (r *PositionRepository) Upsert(
	ctx context.Context,
	position *model.Position,
) error {

	err := r.db.WithContext(ctx).Save(position).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "PositionRepository",
			"op":      "Upsert",
			"account": position.Account,
			"symbol":  position.Symbol,
		}).WithError(err).Error("Failed to save position")

		return err
	}

	return nil
}
