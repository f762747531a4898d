package model

import "time"

// ExchangeCredential stores API access for one account on one exchange.
// Key and secret are encrypted at rest; the security package owns the cipher.
type ExchangeCredential struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Account       string    `gorm:"size:100;not null;uniqueIndex:idx_account_exchange" json:"account"`
	Exchange      string    `gorm:"size:50;not null;uniqueIndex:idx_account_exchange" json:"exchange"`
	APIKeyHash    string    `gorm:"type:text" json:"-"`
	APISecretHash string    `gorm:"type:text" json:"-"`
	Enabled       bool      `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (ExchangeCredential) TableName() string {
	return "exchange_credentials"
}
