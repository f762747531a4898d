package backfill

import (
	"database/sql"
	"errors"
	"net/http"
	"time"
	"tradegateway/src/connectors"
	"tradegateway/src/model"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
)

const (
	Duration1m = "1m"
	Duration1h = "1h"
)

// Backfill pulls historical klines over REST and upserts them as finalized
// candles. The streaming channel only sees candles from the moment it
// connects, so this fills the gap behind it.
type Backfill struct {
	Log      *logger.Entry
	DB       *gorm.DB
	Config   *Config
	exchange goex.API
}

func (b *Backfill) Start() error {
	b.Config = GetConfig()

	b.exchange = b.newBinanceInstance()

	if b.Config.AutoMode {
		if err := b.determineStartPoint(); err != nil {
			return err
		}
	}

	return b.fetchAndSave()
}

func (*Backfill) newBinanceInstance() *binance.Binance {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return binance.NewWithConfig(apiConfig)
}

func (b *Backfill) fetchAndSave() error {
	series, err := b.fetchKlineSeries()
	if err != nil {
		return err
	}

	for i := range series {
		result := series[i]

		candle := &model.MarketCandle{
			Symbol:      b.Config.Symbol + b.Config.Quote,
			Exchange:    connectors.ExchangeBinance,
			Interval:    b.Config.DurationStr,
			BucketStart: time.Unix(result.Timestamp, 0).UTC(),
			Open:        decimal.NewFromFloat(result.Open),
			High:        decimal.NewFromFloat(result.High),
			Low:         decimal.NewFromFloat(result.Low),
			Close:       decimal.NewFromFloat(result.Close),
			Volume:      decimal.NewFromFloat(result.Vol),
		}

		// Historical rows may be re-fetched; replace rather than skip so a
		// partial bucket fetched earlier gets corrected.
		if err := b.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "exchange"}, {Name: "bucket_start"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).Create(candle).Error; err != nil {
			b.Log.WithError(err).Error("fetchAndSave, Create, ")
			return err
		}
	}

	b.Log.WithFields(logger.Fields{
		"Symbol":  b.Config.Symbol + b.Config.Quote,
		"Candles": len(series),
		"StartDt": b.Config.StartDt.String(),
		"EndDt":   b.Config.EndDt.String(),
	}).Info("historical candles inserted or updated in database")

	return nil
}

func (b *Backfill) determineStartPoint() error {
	b.Config.StartDt = b.Config.StartDt.Add(-b.parseDuration())
	b.Config.EndDt = time.Now()

	var latestTime *sql.NullTime
	result := b.DB.Model(&model.MarketCandle{}).
		Select("MAX(bucket_start)").
		Where("symbol = ? AND exchange = ?", b.Config.Symbol+b.Config.Quote, connectors.ExchangeBinance).
		Take(&latestTime)

	b.Log.
		WithField("latestTime", latestTime).
		Info("determineStartPoint")

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			b.Log.
				WithError(result.Error).
				WithField("StartDt", b.Config.StartDt.String()).
				WithField("EndDt", b.Config.EndDt.String()).
				Error("no records found, start from the configured StartDt")
		} else {
			b.Log.
				WithError(result.Error).
				Error("Failed to query latest bucket_start")
			return result.Error
		}
	}

	if latestTime.Valid {
		// Overlap one interval with the last stored bucket so the upsert
		// repairs it if the previous run stopped mid-bucket.
		b.Config.StartDt = latestTime.Time.Add(-b.parseDuration())
		b.Log.
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Info("determineStartPoint valid date found")
	} else {
		err := errors.New("no existing MAX(bucket_start) found")
		b.Log.
			WithError(err).
			WithField("StartDt", b.Config.StartDt.String()).
			WithField("EndDt", b.Config.EndDt.String()).
			Error("determineStartPoint invalid date found")
	}

	return nil
}

func (b *Backfill) fetchKlineSeries() ([]goex.Kline, error) {
	targetSymbol := goex.NewCurrencyPair(goex.Currency{Symbol: b.Config.Symbol}, goex.Currency{Symbol: b.Config.Quote})

	const millis = 1000
	klines, err := b.exchange.GetKlineRecords(
		targetSymbol,
		b.parseDurationToGoex(),
		b.Config.Limit,
		goex.OptionalParameter{}.
			Optional("startTime", b.Config.StartDt.Unix()*millis).
			Optional("endTime", b.Config.EndDt.Unix()*millis),
	)
	if err != nil {
		return nil, err
	}

	return klines, nil
}

func (b *Backfill) parseDuration() time.Duration {
	var duration time.Duration
	switch b.Config.DurationStr {
	case Duration1m:
		duration = time.Minute
	case Duration1h:
		duration = time.Hour
	default:
		panic("invalid BACKFILL_DURATION env var")
	}
	return duration
}

func (b *Backfill) parseDurationToGoex() goex.KlinePeriod {
	var duration goex.KlinePeriod
	switch b.Config.DurationStr {
	case Duration1m:
		duration = goex.KLINE_PERIOD_1MIN
	case Duration1h:
		duration = goex.KLINE_PERIOD_1H
	default:
		panic("invalid BACKFILL_DURATION env var")
	}
	return duration
}
