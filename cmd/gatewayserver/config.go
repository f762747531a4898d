package gatewayserver

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port string `envconfig:"GATEWAY_PORT" default:"8080"`

	// Accounts is a comma separated list of account:exchange pairs, e.g.
	// "main:binance,hedge:kraken". One connector is built per exchange.
	Accounts string `envconfig:"GATEWAY_ACCOUNTS" default:"main:binance"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

// ParseAccounts splits the Accounts list into an account -> exchange map.
func (c *Config) ParseAccounts() (map[string]string, error) {
	accounts := make(map[string]string)
	for _, pair := range strings.Split(c.Accounts, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid account pair %q, want account:exchange", pair)
		}
		accounts[parts[0]] = parts[1]
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("GATEWAY_ACCOUNTS is empty")
	}
	return accounts, nil
}
