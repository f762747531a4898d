package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"tradegateway/src/database"
	"tradegateway/src/model"
)

// CredentialRepository reads/writes encrypted exchange API credentials.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository() *CredentialRepository {
	logger.WithField("component", "CredentialRepository").
		Info("Creating new CredentialRepository with MainDB")

	return &CredentialRepository{
		db: database.MainDB,
	}
}

func NewCredentialRepositoryWithDB(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// GetByAccountAndExchange returns the stored credential for one account on
// one exchange. Returns (nil, nil) when none is configured.
func (r *CredentialRepository) GetByAccountAndExchange(
	ctx context.Context,
	account string,
	exchange string,
) (*model.ExchangeCredential, error) {

	var cred model.ExchangeCredential

	err := r.db.WithContext(ctx).
		Where("account = ? AND exchange = ? AND enabled = ?", account, exchange, true).
		First(&cred).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo":     "CredentialRepository",
			"op":       "GetByAccountAndExchange",
			"account":  account,
			"exchange": exchange,
		}).WithError(err).Error("Failed to fetch credential")

		return nil, err
	}

	return &cred, nil
}

// Save upserts a credential row.
func (r *CredentialRepository) Save(
	ctx context.Context,
	cred *model.ExchangeCredential,
) error {

	return r.db.WithContext(ctx).Save(cred).Error
}
