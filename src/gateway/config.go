package gateway

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// MaxRetries bounds automatic resubmission attempts after the first
	// exchange call fails with a transient error. The same client order id
	// is reused on every retry.
	MaxRetries     int           `envconfig:"GATEWAY_MAX_RETRIES" default:"3"`
	RetryBase      time.Duration `envconfig:"GATEWAY_RETRY_BASE" default:"1s"`
	RetryMax       time.Duration `envconfig:"GATEWAY_RETRY_MAX" default:"8s"`
	MaxOrderQty    float64       `envconfig:"GATEWAY_MAX_ORDER_QTY" default:"0"`
	QuoteAsset     string        `envconfig:"GATEWAY_QUOTE_ASSET" default:"USDT"`
	CheckBalance   bool          `envconfig:"GATEWAY_CHECK_BALANCE" default:"false"`
	ClientIDPrefix string        `envconfig:"GATEWAY_CLIENT_ID_PREFIX" default:"AT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
