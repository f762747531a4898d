package security

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"tradegateway/src/repository"
)

// CredentialProvider resolves per-exchange API keys from encrypted storage.
type CredentialProvider struct {
	creds *repository.CredentialRepository
}

func NewCredentialProvider(creds *repository.CredentialRepository) *CredentialProvider {
	return &CredentialProvider{creds: creds}
}

// GetCredentials returns the decrypted API key and secret for one account on
// one exchange.
func (p *CredentialProvider) GetCredentials(
	ctx context.Context,
	account string,
	exchange string,
) (string, string, error) {

	cred, err := p.creds.GetByAccountAndExchange(ctx, account, exchange)
	if err != nil {
		return "", "", err
	}
	if cred == nil {
		return "", "", fmt.Errorf("no enabled credential for account %s on %s", account, exchange)
	}

	apiKey, err := DecryptString(cred.APIKeyHash)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"account":  account,
			"exchange": exchange,
		}).WithError(err).Error("Failed to decrypt API key")
		return "", "", err
	}

	apiSecret, err := DecryptString(cred.APISecretHash)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"account":  account,
			"exchange": exchange,
		}).WithError(err).Error("Failed to decrypt API secret")
		return "", "", err
	}

	return apiKey, apiSecret, nil
}
