package gatewayserver

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"tradegateway/src/alert"
	"tradegateway/src/connectors"
	"tradegateway/src/database"
	"tradegateway/src/gateway"
	"tradegateway/src/margin"
	"tradegateway/src/metrics"
	"tradegateway/src/repository"
	"tradegateway/src/security"
	"tradegateway/src/server"

	"github.com/sirupsen/logrus"
)

// GatewayServer wires the order gateway, its margin guard and the HTTP API
// into one process. The margin monitor runs in the background so the guard
// reflects live account state.
type GatewayServer struct{}

func (s *GatewayServer) Start() error {
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
		logrus.WithError(err).Error("Invalid GATEWAY_ACCOUNTS")
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

	stats := metrics.NewCollector()

	exceptions := repository.NewExceptionRepository()

	gw := gateway.New(repository.NewOrderRepository(), conns, gateway.GetConfig())
	gw.SetCollector(stats)
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
	monitor.SetCollector(stats)
	monitor.SetExceptionRepository(exceptions)
	gw.SetGuard(monitor)

	go func() {
		if err := monitor.Run(ctx, accounts); err != nil {
			logrus.WithError(err).Error("Margin monitor stopped")
		}
	}()

	logrus.WithField("port", config.Port).Info("Starting order gateway server")
	server.StartServer(config.Port, gw, stats)

	return nil
}
