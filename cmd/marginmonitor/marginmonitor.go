package marginmonitor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"tradegateway/src/alert"
	"tradegateway/src/connectors"
	"tradegateway/src/database"
	"tradegateway/src/gateway"
	"tradegateway/src/margin"
	"tradegateway/src/repository"
	"tradegateway/src/security"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Accounts is a comma separated list of account:exchange pairs.
	Accounts string `envconfig:"MARGIN_ACCOUNTS" default:"main:binance"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

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
		return nil, fmt.Errorf("MARGIN_ACCOUNTS is empty")
	}
	return accounts, nil
}

// MarginMonitor runs the margin evaluation loop as a standalone process.
// Forced liquidations still go through a full order gateway so they get the
// same idempotency and retry treatment as caller orders.
type MarginMonitor struct{}

func (m *MarginMonitor) Start() error {
	config := GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	accounts, err := config.ParseAccounts()
	if err != nil {
		logrus.WithError(err).Error("Invalid MARGIN_ACCOUNTS")
		return err
	}

	provider := security.NewCredentialProvider(repository.NewCredentialRepository())

	conns := make(map[string]connectors.Connector)
	for account, exchange := range accounts {
		if _, ok := conns[exchange]; ok {
			continue
		}
		apiKey, apiSecret, err := provider.GetCredentials(ctx, account, exchange)
		if err != nil {
			logrus.WithField("exchange", exchange).WithError(err).Error("Failed to load credentials")
			return err
		}
		conn, err := connectors.NewConnector(exchange, apiKey, apiSecret)
		if err != nil {
			logrus.WithField("exchange", exchange).WithError(err).Error("Failed to build connector")
			return err
		}
		conns[exchange] = conn
	}

	exceptions := repository.NewExceptionRepository()

	gw := gateway.New(repository.NewOrderRepository(), conns, gateway.GetConfig())
	gw.SetExceptionRepository(exceptions)

	margins := repository.NewMarginRepository()
	sink := alert.MultiSink{alert.NewLogSink(), alert.NewDBSink(margins)}
	monitor := margin.NewMonitor(
		repository.NewPositionRepository(),
		repository.NewCandleRepository(),
		margins,
		gw,
		conns,
		sink,
		margin.GetConfig(),
	)
	monitor.SetExceptionRepository(exceptions)
	gw.SetGuard(monitor)

	return monitor.Run(ctx, accounts)
}
