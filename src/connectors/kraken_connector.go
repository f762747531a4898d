package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"tradegateway/src/model"
	"tradegateway/src/ratelimit"
)

// FULL REST API CLIENT FOR KRAKEN FUTURES (v3 /derivatives)
// RESTY ONLY, RATE LIMITED, CLASSIFIED ERRORS

// Kraken Futures uses /derivatives + /api/v3/...
const (
	defaultKrakenDerivativesBaseURL = "https://futures.kraken.com/derivatives"
	krakenAPIV3Prefix               = "/api/v3"
)

// KrakenConnector implements Connector against Kraken Futures.
type KrakenConnector struct {
	apiKey    string
	apiSecret string // base64-encoded secret from Kraken
	baseURL   string
	http      *resty.Client
	limits    *ratelimit.Limiter
}

func NewKrakenConnector(apiKey, apiSecret, baseURL string, limits *ratelimit.Limiter) *KrakenConnector {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultKrakenDerivativesBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &KrakenConnector{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
		limits:    limits,
	}
}

func (c *KrakenConnector) Name() string {
	return "kraken"
}

// -----------------------------
// AUTH
// -----------------------------
//
// Kraken Futures REST (v3 /derivatives/*) Authent:
//  1) message = postData + Nonce + endpointPath
//  2) sha256(message)
//  3) base64-decode apiSecret
//  4) hmac-sha512(secretDecoded, sha256Digest)
//  5) base64-encode result
//
// endpointPath is /api/v3/... with no /derivatives prefix.

func krakenNonce() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func computeKrakenAuthent(postData, nonce, endpointPath, apiSecretB64 string) (string, error) {
	msg := postData + nonce + endpointPath

	sum := sha256.Sum256([]byte(msg))

	secret, err := base64.StdEncoding.DecodeString(apiSecretB64)
	if err != nil {
		return "", fmt.Errorf("base64 decode api secret failed: %w", err)
	}

	mac := hmac.New(sha512.New, secret)
	_, _ = mac.Write(sum[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// We sign exactly what we send. This helper encodes spaces as %20, not '+',
// so the signed query matches the raw URI component.
func queryEscapeRFC3986(s string) string {
	esc := url.QueryEscape(s)
	return strings.ReplaceAll(esc, "+", "%20")
}

func encodeValuesRFC3986(v url.Values) string {
	if len(v) == 0 {
		return ""
	}
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := v[k]
		sort.Strings(vals)
		ek := queryEscapeRFC3986(k)
		for _, val := range vals {
			parts = append(parts, ek+"="+queryEscapeRFC3986(val))
		}
	}
	return strings.Join(parts, "&")
}

// -----------------------------
// LOW-LEVEL REQUESTS
// -----------------------------

type krakenBaseResp struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

func (c *KrakenConnector) doRequest(ctx context.Context, method, endpoint, symbol string, params url.Values, auth bool, out any) error {
	if c.limits != nil {
		if err := c.limits.Wait(ctx, symbol); err != nil {
			return err
		}
	}

	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	httpPath := krakenAPIV3Prefix + endpoint
	postData := encodeValuesRFC3986(params)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")

	if auth {
		nonce := krakenNonce()
		authent, err := computeKrakenAuthent(postData, nonce, httpPath, c.apiSecret)
		if err != nil {
			return NewExchangeError(c.Name(), endpoint, KindAuthFailure, 0, err.Error(), err)
		}

		req = req.
			SetHeader("APIKey", c.apiKey).
			SetHeader("Nonce", nonce).
			SetHeader("Authent", authent)
	}

	if postData != "" {
		req = req.SetQueryString(postData)
	}

	resp, err := req.Execute(method, httpPath)
	if err != nil {
		return NewExchangeError(c.Name(), endpoint, classifyTransport(err), 0, err.Error(), err)
	}

	raw := resp.Body()
	if resp.StatusCode() != 200 {
		kind := classifyHTTPStatus(resp.StatusCode())
		return NewExchangeError(c.Name(), endpoint, kind, resp.StatusCode(),
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), string(raw)), nil)
	}

	// Kraken Futures returns HTTP 200 even on errors, with {result:"error", error:"..."}.
	var base krakenBaseResp
	if err := json.Unmarshal(raw, &base); err != nil {
		return NewExchangeError(c.Name(), endpoint, KindUnknown, 0,
			fmt.Sprintf("json unmarshal failed: %v. raw=%s", err, string(raw)), err)
	}
	if strings.EqualFold(base.Result, "error") {
		kind := classifyKrakenError(base.Error, resp.StatusCode())
		return NewExchangeError(c.Name(), endpoint, kind, 0, base.Error, nil)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return NewExchangeError(c.Name(), endpoint, KindUnknown, 0,
				fmt.Sprintf("json unmarshal into output failed: %v. raw=%s", err, string(raw)), err)
		}
	}

	return nil
}

// -----------------------------
// TRADING
// -----------------------------

// krakenOrderType maps the neutral order types onto Kraken Futures types.
func krakenOrderType(orderType string) (string, bool) {
	switch orderType {
	case model.OrderTypeMarket:
		return "mkt", false
	case model.OrderTypeLimit:
		return "lmt", true
	case model.OrderTypeStopLoss:
		return "stp", false
	case model.OrderTypeStopLimit:
		return "stp", true
	case model.OrderTypeTakeProfit:
		return "take_profit", false
	}
	return "", false
}

func normalizeKrakenStatus(status string) string {
	switch strings.ToLower(status) {
	case "placed", "untouched", "open":
		return model.OrderStatusOpen
	case "partiallyfilled", "partially_filled":
		return model.OrderStatusPartiallyFilled
	case "filled", "fullyexecuted":
		return model.OrderStatusFilled
	case "cancelled", "canceled":
		return model.OrderStatusCancelled
	case "rejected", "insufficientavailablefunds", "wouldcauseliquidation", "iocwouldnotexecute", "selffill", "wouldexecuteselffill", "marketsuspended", "marketinactive", "invalidprice", "invalidsize", "toomanysmallorders", "clientordderidalreadyexist", "maxpositionviolation":
		return model.OrderStatusRejected
	case "expired":
		return model.OrderStatusExpired
	}
	return model.OrderStatusOpen
}

type krakenSendOrderResponse struct {
	Result     string `json:"result"`
	SendStatus struct {
		ReceivedTime string `json:"receivedTime"`
		Status       string `json:"status"`
		OrderID      string `json:"order_id"`
	} `json:"sendStatus"`
}

func (c *KrakenConnector) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ordType, needsPrice := krakenOrderType(req.OrderType)
	if ordType == "" {
		return nil, NewExchangeError(c.Name(), "PlaceOrder", KindRejected, 0,
			fmt.Sprintf("unsupported order type %q", req.OrderType), nil)
	}

	params := url.Values{}
	params.Set("orderType", ordType)
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToLower(req.Side))
	params.Set("size", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	params.Set("cliOrdId", req.ClientOrderID)
	if needsPrice {
		if req.Price == nil {
			return nil, NewExchangeError(c.Name(), "PlaceOrder", KindRejected, 0,
				"limit price required for "+req.OrderType, nil)
		}
		params.Set("limitPrice", strconv.FormatFloat(*req.Price, 'f', -1, 64))
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
		"size":            req.Quantity,
		"client_order_id": req.ClientOrderID,
	}).Info("Placing order")

	var out krakenSendOrderResponse
	if err := c.doRequest(ctx, "POST", "/sendorder", req.Symbol, params, true, &out); err != nil {
		return nil, err
	}

	status := normalizeKrakenStatus(out.SendStatus.Status)
	if status == model.OrderStatusRejected {
		return nil, NewExchangeError(c.Name(), "/sendorder", KindRejected, 0, out.SendStatus.Status, nil)
	}

	return &PlaceOrderResult{
		ExchangeOrderID: out.SendStatus.OrderID,
		Status:          status,
	}, nil
}

func (c *KrakenConnector) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := url.Values{}
	params.Set("order_id", exchangeOrderID)

	logger.WithFields(map[string]interface{}{
		"exchange": c.Name(),
		"symbol":   symbol,
		"order_id": exchangeOrderID,
	}).Info("Cancelling order")

	var out struct {
		CancelStatus struct {
			Status string `json:"status"`
		} `json:"cancelStatus"`
	}
	if err := c.doRequest(ctx, "POST", "/cancelorder", symbol, params, true, &out); err != nil {
		return err
	}
	if s := strings.ToLower(out.CancelStatus.Status); s != "cancelled" && s != "canceled" {
		return NewExchangeError(c.Name(), "/cancelorder", KindRejected, 0, out.CancelStatus.Status, nil)
	}
	return nil
}

type krakenOrderStatusResponse struct {
	Orders []struct {
		Status string `json:"status"`
		Order  struct {
			OrderID      string  `json:"orderId"`
			Filled       float64 `json:"filled"`
			LimitPrice   float64 `json:"limitPrice"`
			LastUpdateTS string  `json:"lastUpdateTimestamp"`
		} `json:"order"`
	} `json:"orders"`
}

func (c *KrakenConnector) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (*OrderStatus, error) {
	params := url.Values{}
	params.Set("orderIds", exchangeOrderID)

	var out krakenOrderStatusResponse
	if err := c.doRequest(ctx, "POST", "/orders/status", symbol, params, true, &out); err != nil {
		return nil, err
	}
	if len(out.Orders) == 0 {
		return nil, NewExchangeError(c.Name(), "/orders/status", KindRejected, 0,
			fmt.Sprintf("order %s not found", exchangeOrderID), nil)
	}

	entry := out.Orders[0]
	status := &OrderStatus{
		ExchangeOrderID: entry.Order.OrderID,
		Status:          normalizeKrakenStatus(entry.Status),
		FilledQty:       entry.Order.Filled,
	}
	if ts, err := time.Parse(time.RFC3339, entry.Order.LastUpdateTS); err == nil {
		status.UpdatedAt = ts.UTC()
	}
	return status, nil
}

// -----------------------------
// ACCOUNT
// -----------------------------

type krakenAccountsResponse struct {
	Accounts map[string]struct {
		Currency string             `json:"currency"`
		Balances map[string]float64 `json:"balances"`
		Auxiliary struct {
			AvailableFunds float64 `json:"af"`
			PortfolioValue float64 `json:"pv"`
		} `json:"auxiliary"`
	} `json:"accounts"`
}

func (c *KrakenConnector) GetBalance(ctx context.Context, asset string) (*Balance, error) {
	var out krakenAccountsResponse
	if err := c.doRequest(ctx, "GET", "/accounts", "", nil, true, &out); err != nil {
		return nil, err
	}

	asset = strings.ToLower(asset)
	for _, acct := range out.Accounts {
		for currency, amount := range acct.Balances {
			if strings.ToLower(currency) == asset {
				return &Balance{
					Asset:     strings.ToUpper(asset),
					Total:     amount,
					Available: acct.Auxiliary.AvailableFunds,
				}, nil
			}
		}
	}

	return nil, NewExchangeError(c.Name(), "/accounts", KindRejected, 0,
		fmt.Sprintf("asset %s not found in accounts response", asset), nil)
}

type krakenOpenPositionsResponse struct {
	OpenPositions []struct {
		Symbol            string   `json:"symbol"`
		Side              string   `json:"side"` // long or short
		Size              float64  `json:"size"`
		Price             float64  `json:"price"`
		UnrealizedFunding *float64 `json:"unrealizedFunding,omitempty"`
		MaxFixedLeverage  *float64 `json:"maxFixedLeverage,omitempty"`
	} `json:"openPositions"`
}

func (c *KrakenConnector) GetOpenPositions(ctx context.Context) ([]ExchangePosition, error) {
	var out krakenOpenPositionsResponse
	if err := c.doRequest(ctx, "GET", "/openpositions", "", nil, true, &out); err != nil {
		return nil, err
	}

	positions := make([]ExchangePosition, 0, len(out.OpenPositions))
	for _, p := range out.OpenPositions {
		if p.Size == 0 {
			continue
		}
		side := model.PositionSideLong
		if strings.ToLower(p.Side) == "short" {
			side = model.PositionSideShort
		}
		pos := ExchangePosition{
			Symbol:     p.Symbol,
			Side:       side,
			Quantity:   p.Size,
			EntryPrice: p.Price,
			MarkPrice:  p.Price,
		}
		if p.MaxFixedLeverage != nil {
			pos.Leverage = *p.MaxFixedLeverage
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (c *KrakenConnector) SetLeverage(ctx context.Context, symbol string, leverage int, marginType string) error {
	// Kraken Futures sets leverage per symbol via leverage preferences; margin
	// type is implied by the contract and not separately configurable.
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("maxLeverage", strconv.Itoa(leverage))

	var out krakenBaseResp
	return c.doRequest(ctx, "PUT", "/leveragepreferences", symbol, params, true, &out)
}
