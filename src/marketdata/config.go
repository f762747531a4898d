package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StreamURL      string        `envconfig:"MARKETDATA_STREAM_URL" default:"wss://fstream.binance.com/stream"`
	Interval       string        `envconfig:"MARKETDATA_INTERVAL" default:"1m"`
	QueueSize      int           `envconfig:"MARKETDATA_QUEUE_SIZE" default:"256"`
	PersistRetries int           `envconfig:"MARKETDATA_PERSIST_RETRIES" default:"3"`
	ReconnectBase  time.Duration `envconfig:"MARKETDATA_RECONNECT_BASE" default:"1s"`
	ReconnectMax   time.Duration `envconfig:"MARKETDATA_RECONNECT_MAX" default:"30s"`
	ReadTimeout    time.Duration `envconfig:"MARKETDATA_READ_TIMEOUT" default:"90s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
