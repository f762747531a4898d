package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradegateway/src/database"
	"tradegateway/src/model"
)

// CandleRepository handles persistence of finalized market candles.
type CandleRepository struct {
	db *gorm.DB
}

func NewCandleRepository() *CandleRepository {
	logger.WithField("component", "CandleRepository").
		Info("Creating new CandleRepository with MainDB")

	return &CandleRepository{
		db: database.MainDB,
	}
}

func NewCandleRepositoryWithDB(db *gorm.DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// Insert persists one finalized candle. A candle for a given (symbol,
// exchange, bucket_start) is immutable once written; a conflicting insert is
// ignored rather than revising the existing row.
func (r *CandleRepository) Insert(
	ctx context.Context,
	candle *model.MarketCandle,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "CandleRepository",
		"op":           "Insert",
		"symbol":       candle.Symbol,
		"exchange":     candle.Exchange,
		"bucket_start": candle.BucketStart,
	}).Debug("Inserting finalized candle")

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "exchange"}, {Name: "bucket_start"}},
			DoNothing: true,
		}).
		Create(candle).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "CandleRepository",
			"op":       "Insert",
			"symbol":   candle.Symbol,
			"exchange": candle.Exchange,
		}).WithError(err).Error("Failed to insert candle")

		return err
	}

	return nil
}

// QueryLatest returns the most recent persisted candle for one symbol on one
// exchange. Returns (nil, nil) when no candle exists yet.
func (r *CandleRepository) QueryLatest(
	ctx context.Context,
	symbol string,
	exchange string,
) (*model.MarketCandle, error) {

	var candle model.MarketCandle

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND exchange = ?", symbol, exchange).
		Order("bucket_start DESC").
		First(&candle).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "CandleRepository",
			"op":       "QueryLatest",
			"symbol":   symbol,
			"exchange": exchange,
		}).WithError(err).Error("Failed to fetch latest candle")

		return nil, err
	}

	return &candle, nil
}

// FindRange returns candles for one symbol ordered oldest first within the
// given bucket window.
func (r *CandleRepository) FindRange(
	ctx context.Context,
	symbol string,
	exchange string,
	limit int,
) ([]model.MarketCandle, error) {

	if limit <= 0 {
		limit = 200
	}

	var candles []model.MarketCandle

	err := r.db.WithContext(ctx).
		Where("symbol = ? AND exchange = ?", symbol, exchange).
		Order("bucket_start DESC").
		Limit(limit).
		Find(&candles).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "CandleRepository",
			"op":       "FindRange",
			"symbol":   symbol,
			"exchange": exchange,
		}).WithError(err).Error("Failed to fetch candle range")

		return nil, err
	}

	return candles, nil
}
