package main

import (
	"fmt"
	"os"
	"tradegateway/cmd/backfill"
	"tradegateway/cmd/gatewayserver"
	"tradegateway/cmd/marginmonitor"
	"tradegateway/cmd/marketfeed"
	"tradegateway/src/database"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "TradeGateway CMD"
	app.Usage = "The trade gateway command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		marketFeedCMD,
		marginCMD,
		backfillCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the order gateway HTTP server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the order gateway server with margin guard`,
	}
	marketFeedCMD = cli.Command{
		Name:        "marketfeed",
		Usage:       "run the streaming market data channel",
		Action:      marketFeedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Stream finalized candles into the database`,
	}
	marginCMD = cli.Command{
		Name:        "margin",
		Usage:       "run the margin monitor",
		Action:      marginAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the margin monitor loop`,
	}
	backfillCMD = cli.Command{
		Name:        "backfill",
		Usage:       "backfill historical candles",
		Action:      backfillAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill historical candles over REST`,
	}
)

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting gateway server CMD")

	srv := &gatewayserver.GatewayServer{}
	err := srv.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func marketFeedAction(_ *cli.Context) error {

	logrus.Info("Starting market feed CMD")

	feed := &marketfeed.MarketFeed{}
	err := feed.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func marginAction(_ *cli.Context) error {

	logrus.Info("Starting margin monitor CMD")

	monitor := &marginmonitor.MarginMonitor{}
	err := monitor.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func backfillAction(_ *cli.Context) error {

	logrus.Info("Starting candle backfill CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	bf := &backfill.Backfill{
		Log: logrus.WithField("cmd", "backfill"),
		DB:  database.MainDB,
	}

	err := bf.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting backfill cmd")
		return err
	}

	return nil
}
