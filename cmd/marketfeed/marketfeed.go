package marketfeed

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"tradegateway/src/database"
	"tradegateway/src/marketdata"
	"tradegateway/src/repository"

	"github.com/sirupsen/logrus"
)

// MarketFeed runs the streaming market data channel until interrupted.
type MarketFeed struct{}

func (f *MarketFeed) Start() error {
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

	symbols := config.ParseSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("MARKETFEED_SYMBOLS is empty")
	}

	channel := marketdata.NewChannel(
		config.Exchange,
		repository.NewCandleRepository(),
		marketdata.GetConfig(),
	)

	if err := channel.Start(ctx, symbols); err != nil {
		logrus.WithError(err).Error("Failed to start market data channel")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"exchange": config.Exchange,
		"symbols":  symbols,
	}).Info("Market data channel started")

	<-ctx.Done()
	channel.Stop()

	return nil
}
