package connectors

import (
	"fmt"

	"tradegateway/src/ratelimit"
)

// Supported exchanges are a closed set dispatched through the Connector
// interface, never through reflection.
const (
	ExchangeBinance = "binance"
	ExchangeKraken  = "kraken"
)

// NewConnector builds the adapter for one exchange. Each adapter gets its own
// rate limiter; limiter state is the only thing shared across concurrent
// calls for the same exchange.
func NewConnector(exchange, apiKey, apiSecret string) (Connector, error) {
	config := GetConfig()

	switch exchange {
	case ExchangeBinance:
		limits := ratelimit.New(ExchangeBinance, config.BinanceRate, config.BinanceBurst)
		if config.SymbolRate > 0 {
			limits.WithSymbolLimit(config.SymbolRate, config.SymbolBurst)
		}
		return NewBinanceConnector(apiKey, apiSecret, config.BinanceBaseURL, limits), nil

	case ExchangeKraken:
		limits := ratelimit.New(ExchangeKraken, config.KrakenRate, config.KrakenBurst)
		if config.SymbolRate > 0 {
			limits.WithSymbolLimit(config.SymbolRate, config.SymbolBurst)
		}
		return NewKrakenConnector(apiKey, apiSecret, config.KrakenBaseURL, limits), nil
	}

	return nil, fmt.Errorf("exchange %s not supported", exchange)
}
