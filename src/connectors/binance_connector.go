package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradegateway/src/model"
	"tradegateway/src/ratelimit"
)

// FULL REST API CLIENT FOR BINANCE USDT-MARGINED FUTURES (fapi)
// RESTY ONLY, RATE LIMITED, CLASSIFIED ERRORS

const (
	defaultBinanceFuturesBaseURL = "https://fapi.binance.com"
	binanceRecvWindowMillis      = 5000
)

// BinanceConnector implements Connector against Binance USDT-M futures.
type BinanceConnector struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
	limits    *ratelimit.Limiter

	// overridable in tests
	now func() time.Time
}

func NewBinanceConnector(apiKey, apiSecret, baseURL string, limits *ratelimit.Limiter) *BinanceConnector {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBinanceFuturesBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &BinanceConnector{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
		limits:    limits,
		now:       time.Now,
	}
}

func (c *BinanceConnector) Name() string {
	return "binance"
}

// -----------------------------
// AUTH
// -----------------------------
//
// Binance signs the url-encoded query string with HMAC-SHA256 of the API
// secret and appends it as the signature parameter. The API key travels in
// the X-MBX-APIKEY header.

func (c *BinanceConnector) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	_, _ = mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// -----------------------------
// LOW-LEVEL REQUESTS
// -----------------------------

func (c *BinanceConnector) doSigned(ctx context.Context, method, path, symbol string, params url.Values, out any) error {
	if c.limits != nil {
		if err := c.limits.Wait(ctx, symbol); err != nil {
			return err
		}
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(binanceRecvWindowMillis))

	query := params.Encode()
	query = query + "&signature=" + c.sign(query)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(query).
		Execute(method, path)
	if err != nil {
		return NewExchangeError(c.Name(), method+" "+path, classifyTransport(err), 0, err.Error(), err)
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		var apiErr binanceAPIError
		if uerr := json.Unmarshal(raw, &apiErr); uerr == nil && apiErr.Code != 0 {
			kind := classifyBinanceCode(apiErr.Code, resp.StatusCode())
			return NewExchangeError(c.Name(), path, kind, apiErr.Code, apiErr.Msg, nil)
		}
		kind := classifyHTTPStatus(resp.StatusCode())
		return NewExchangeError(c.Name(), path, kind, 0,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), string(raw)), nil)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return NewExchangeError(c.Name(), path, KindUnknown, 0,
				fmt.Sprintf("json unmarshal failed: %v. raw=%s", err, string(raw)), err)
		}
	}

	return nil
}

// -----------------------------
// TRADING
// -----------------------------

type binanceOrderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	UpdateTime    int64  `json:"updateTime"`
}

// binanceOrderType maps the neutral order types onto fapi order types.
func binanceOrderType(orderType string) (string, bool) {
	switch orderType {
	case model.OrderTypeMarket:
		return "MARKET", false
	case model.OrderTypeLimit:
		return "LIMIT", true
	case model.OrderTypeStopLoss:
		return "STOP_MARKET", false
	case model.OrderTypeStopLimit:
		return "STOP", true
	case model.OrderTypeTakeProfit:
		return "TAKE_PROFIT_MARKET", false
	}
	return "", false
}

func normalizeBinanceStatus(status string) string {
	switch status {
	case "NEW":
		return model.OrderStatusOpen
	case "PARTIALLY_FILLED":
		return model.OrderStatusPartiallyFilled
	case "FILLED":
		return model.OrderStatusFilled
	case "CANCELED":
		return model.OrderStatusCancelled
	case "REJECTED":
		return model.OrderStatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return model.OrderStatusExpired
	}
	return model.OrderStatusOpen
}

func (c *BinanceConnector) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ordType, needsPrice := binanceOrderType(req.OrderType)
	if ordType == "" {
		return nil, NewExchangeError(c.Name(), "PlaceOrder", KindRejected, 0,
			fmt.Sprintf("unsupported order type %q", req.OrderType), nil)
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(req.Symbol))
	params.Set("side", strings.ToUpper(req.Side))
	params.Set("type", ordType)
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	params.Set("newClientOrderId", req.ClientOrderID)
	if needsPrice {
		if req.Price == nil {
			return nil, NewExchangeError(c.Name(), "PlaceOrder", KindRejected, 0,
				"limit price required for "+req.OrderType, nil)
		}
		params.Set("price", strconv.FormatFloat(*req.Price, 'f', -1, 64))
		params.Set("timeInForce", "GTC")
	}
	if req.StopPrice != nil {
		params.Set("stopPrice", strconv.FormatFloat(*req.StopPrice, 'f', -1, 64))
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	logger.WithFields(map[string]interface{}{
		"exchange":        c.Name(),
		"symbol":          req.Symbol,
		"side":            req.Side,
		"type":            ordType,
		"qty":             req.Quantity,
		"client_order_id": req.ClientOrderID,
	}).Info("Placing order")

	var out binanceOrderResponse
	if err := c.doSigned(ctx, "POST", "/fapi/v1/order", req.Symbol, params, &out); err != nil {
		return nil, err
	}

	result := &PlaceOrderResult{
		ExchangeOrderID: strconv.FormatInt(out.OrderID, 10),
		Status:          normalizeBinanceStatus(out.Status),
	}
	if qty, err := strconv.ParseFloat(out.ExecutedQty, 64); err == nil {
		result.FilledQty = qty
	}
	if avg, err := strconv.ParseFloat(out.AvgPrice, 64); err == nil && avg > 0 {
		result.AvgFillPrice = &avg
	}
	return result, nil
}

func (c *BinanceConnector) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", exchangeOrderID)

	logger.WithFields(map[string]interface{}{
		"exchange": c.Name(),
		"symbol":   symbol,
		"order_id": exchangeOrderID,
	}).Info("Cancelling order")

	return c.doSigned(ctx, "DELETE", "/fapi/v1/order", symbol, params, nil)
}

func (c *BinanceConnector) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (*OrderStatus, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", exchangeOrderID)

	var out binanceOrderResponse
	if err := c.doSigned(ctx, "GET", "/fapi/v1/order", symbol, params, &out); err != nil {
		return nil, err
	}

	status := &OrderStatus{
		ExchangeOrderID: strconv.FormatInt(out.OrderID, 10),
		Status:          normalizeBinanceStatus(out.Status),
		UpdatedAt:       time.UnixMilli(out.UpdateTime).UTC(),
	}
	if qty, err := strconv.ParseFloat(out.ExecutedQty, 64); err == nil {
		status.FilledQty = qty
	}
	if avg, err := strconv.ParseFloat(out.AvgPrice, 64); err == nil && avg > 0 {
		status.AvgFillPrice = &avg
	}
	return status, nil
}

// -----------------------------
// ACCOUNT
// -----------------------------

type binanceBalanceEntry struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

func (c *BinanceConnector) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	var out []binanceBalanceEntry
	if err := c.doSigned(ctx, "GET", "/fapi/v2/balance", "", nil, &out); err != nil {
		return nil, err
	}

	asset = strings.ToUpper(asset)
	for _, entry := range out {
		if entry.Asset != asset {
			continue
		}
		total, _ := strconv.ParseFloat(entry.Balance, 64)
		avail, _ := strconv.ParseFloat(entry.AvailableBalance, 64)
		return &Balance{Asset: asset, Total: total, Available: avail}, nil
	}

	return nil, NewExchangeError(c.Name(), "GetBalance", KindRejected, 0,
		fmt.Sprintf("asset %s not found in balance response", asset), nil)
}

type binancePositionEntry struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
}

func (c *BinanceConnector) GetOpenPositions(ctx context.Context) ([]ExchangePosition, error) {
	var out []binancePositionEntry
	if err := c.doSigned(ctx, "GET", "/fapi/v2/positionRisk", "", nil, &out); err != nil {
		return nil, err
	}

	positions := make([]ExchangePosition, 0, len(out))
	for _, entry := range out {
		amt, _ := strconv.ParseFloat(entry.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		side := model.PositionSideLong
		if amt < 0 {
			side = model.PositionSideShort
			amt = -amt
		}
		entryPrice, _ := strconv.ParseFloat(entry.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(entry.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(entry.UnRealizedProfit, 64)
		leverage, _ := strconv.ParseFloat(entry.Leverage, 64)
		positions = append(positions, ExchangePosition{
			Symbol:        entry.Symbol,
			Side:          side,
			Quantity:      amt,
			EntryPrice:    entryPrice,
			MarkPrice:     markPrice,
			UnrealizedPnl: pnl,
			Leverage:      leverage,
		})
	}
	return positions, nil
}

func (c *BinanceConnector) SetLeverage(ctx context.Context, symbol string, leverage int, marginType string) error {
	if marginType != "" {
		mt := "CROSSED"
		if marginType == model.MarginTypeIsolated {
			mt = "ISOLATED"
		}
		params := url.Values{}
		params.Set("symbol", strings.ToUpper(symbol))
		params.Set("marginType", mt)
		err := c.doSigned(ctx, "POST", "/fapi/v1/marginType", symbol, params, nil)
		if err != nil {
			// -4046: margin type already set, not a failure
			var ee *ExchangeError
			if !asExchangeError(err, &ee) || ee.Code != -4046 {
				return err
			}
		}
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("leverage", strconv.Itoa(leverage))
	return c.doSigned(ctx, "POST", "/fapi/v1/leverage", symbol, params, nil)
}
