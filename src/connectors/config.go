package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BinanceBaseURL string  `envconfig:"BINANCE_BASE_URL" default:""`
	BinanceRate    float64 `envconfig:"BINANCE_CALLS_PER_SECOND" default:"8"`
	BinanceBurst   int     `envconfig:"BINANCE_BURST" default:"4"`

	KrakenBaseURL string  `envconfig:"KRAKEN_BASE_URL" default:""`
	KrakenRate    float64 `envconfig:"KRAKEN_CALLS_PER_SECOND" default:"2"`
	KrakenBurst   int     `envconfig:"KRAKEN_BURST" default:"2"`

	SymbolRate  float64 `envconfig:"SYMBOL_CALLS_PER_SECOND" default:"0"`
	SymbolBurst int     `envconfig:"SYMBOL_BURST" default:"1"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
