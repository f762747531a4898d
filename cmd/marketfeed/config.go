package marketfeed

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Exchange string `envconfig:"MARKETFEED_EXCHANGE" default:"binance"`
	Symbols  string `envconfig:"MARKETFEED_SYMBOLS" default:"BTCUSDT,ETHUSDT"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

func (c *Config) ParseSymbols() []string {
	var symbols []string
	for _, s := range strings.Split(c.Symbols, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}
