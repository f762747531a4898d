package marketdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradegateway/src/model"
)

// binanceStreamFrame is one message from a Binance combined stream.
type binanceStreamFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceKlineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime   int64  `json:"t"`
		Symbol      string `json:"s"`
		Interval    string `json:"i"`
		Open        string `json:"o"`
		Close       string `json:"c"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Volume      string `json:"v"`
		TradeCount  int64  `json:"n"`
		Closed      bool   `json:"x"`
		QuoteVolume string `json:"q"`
	} `json:"k"`
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// streamName builds the combined-stream topic for one symbol.
func streamName(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

// parseKlineMessage decodes one raw frame. It returns (nil, false, nil) for
// frames that are valid but not finalized klines: subscription acks, partial
// in-progress buckets, and other event types are observed and discarded.
func parseKlineMessage(exchange string, raw []byte) (*model.MarketCandle, bool, error) {
	var frame binanceStreamFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, false, fmt.Errorf("bad stream frame: %w", err)
	}

	payload := frame.Data
	if len(payload) == 0 {
		// Raw (non-combined) endpoint or an ack frame.
		payload = raw
	}

	var event binanceKlineEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, false, fmt.Errorf("bad kline payload: %w", err)
	}
	if event.EventType != "kline" {
		return nil, false, nil
	}
	if !event.Kline.Closed {
		// In-progress bucket; must never be persisted.
		return nil, false, nil
	}

	open, err := decimal.NewFromString(event.Kline.Open)
	if err != nil {
		return nil, false, fmt.Errorf("bad open %q: %w", event.Kline.Open, err)
	}
	high, err := decimal.NewFromString(event.Kline.High)
	if err != nil {
		return nil, false, fmt.Errorf("bad high %q: %w", event.Kline.High, err)
	}
	low, err := decimal.NewFromString(event.Kline.Low)
	if err != nil {
		return nil, false, fmt.Errorf("bad low %q: %w", event.Kline.Low, err)
	}
	closePx, err := decimal.NewFromString(event.Kline.Close)
	if err != nil {
		return nil, false, fmt.Errorf("bad close %q: %w", event.Kline.Close, err)
	}
	volume, err := decimal.NewFromString(event.Kline.Volume)
	if err != nil {
		return nil, false, fmt.Errorf("bad volume %q: %w", event.Kline.Volume, err)
	}

	candle := &model.MarketCandle{
		Symbol:      strings.ToUpper(event.Kline.Symbol),
		Exchange:    exchange,
		Interval:    event.Kline.Interval,
		BucketStart: time.UnixMilli(event.Kline.StartTime).UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePx,
		Volume:      volume,
	}
	if quote, err := decimal.NewFromString(event.Kline.QuoteVolume); err == nil {
		candle.QuoteVolume = &quote
	}
	if event.Kline.TradeCount > 0 {
		count := event.Kline.TradeCount
		candle.TradeCount = &count
	}

	return candle, true, nil
}
