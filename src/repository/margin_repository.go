package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradegateway/src/database"
	"tradegateway/src/model"
)

// MarginRepository persists margin snapshots and alerts.
type MarginRepository struct {
	db *gorm.DB
}

func NewMarginRepository() *MarginRepository {
	logger.WithField("component", "MarginRepository").
		Info("Creating new MarginRepository with MainDB")

	return &MarginRepository{
		db: database.MainDB,
	}
}

func NewMarginRepositoryWithDB(db *gorm.DB) *MarginRepository {
	return &MarginRepository{db: db}
}

// InsertState writes one evaluated margin snapshot.
func (r *MarginRepository) InsertState(
	ctx context.Context,
	state *model.MarginState,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":         "MarginRepository",
		"op":           "InsertState",
		"account":      state.Account,
		"exchange":     state.Exchange,
		"health_ratio": state.HealthRatio,
	}).Debug("Inserting margin state")

	err := r.db.WithContext(ctx).Create(state).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":    "MarginRepository",
			"op":      "InsertState",
			"account": state.Account,
		}).WithError(err).Error("Failed to insert margin state")

		return err
	}

	return nil
}

// InsertAlert writes one alert row.
func (r *MarginRepository) InsertAlert(
	ctx context.Context,
	alert *model.Alert,
) error {

	err := r.db.WithContext(ctx).Create(alert).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "MarginRepository",
			"op":       "InsertAlert",
			"kind":     alert.Kind,
			"severity": alert.Severity,
			"account":  alert.Account,
		}).WithError(err).Error("Failed to insert alert")

		return err
	}

	return nil
}
