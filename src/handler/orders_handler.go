package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"tradegateway/src/gateway"
	"tradegateway/src/metrics"
	"tradegateway/src/model"
)

// OrderService is the slice of the order gateway the HTTP layer consumes.
type OrderService interface {
	Submit(ctx context.Context, order *model.Order) (*model.Order, error)
	Cancel(ctx context.Context, orderID uint) (*model.Order, error)
	GetStatus(ctx context.Context, orderID uint) (*model.Order, error)
	SyncAll(ctx context.Context) (int, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case gateway.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, gateway.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, gateway.ErrInvalidState):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, gateway.ErrSubmissionBlocked):
		writeJSON(w, http.StatusLocked, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
}

// SubmitOrderRequest is the caller-facing order submission payload.
type SubmitOrderRequest struct {
	ClientOrderID string   `json:"client_order_id"`
	Exchange      string   `json:"exchange"`
	Account       string   `json:"account"`
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	OrderType     string   `json:"order_type"`
	Quantity      float64  `json:"quantity"`
	Price         *float64 `json:"price,omitempty"`
	StopPrice     *float64 `json:"stop_price,omitempty"`
	StrategyTag   *string  `json:"strategy_tag,omitempty"`
	ReduceOnly    bool     `json:"reduce_only"`
}

// SubmitOrderHandler accepts an order and returns the persisted record,
// which may be a pre-existing one when the idempotency key was seen before.
func SubmitOrderHandler(service OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}

		order := &model.Order{
			ClientOrderID: req.ClientOrderID,
			Exchange:      req.Exchange,
			Account:       req.Account,
			Symbol:        req.Symbol,
			Side:          req.Side,
			OrderType:     req.OrderType,
			Quantity:      req.Quantity,
			Price:         req.Price,
			StopPrice:     req.StopPrice,
			StrategyTag:   req.StrategyTag,
			ReduceOnly:    req.ReduceOnly,
		}

		result, err := service.Submit(r.Context(), order)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func orderIDFromURL(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "orderID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// CancelOrderHandler cancels a non-terminal order.
func CancelOrderHandler(service OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderIDFromURL(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
			return
		}

		order, err := service.Cancel(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}

// GetOrderHandler returns the locally persisted order state.
func GetOrderHandler(service OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := orderIDFromURL(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
			return
		}

		order, err := service.GetStatus(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, order)
	}
}

// MetricsHandler returns a snapshot of the shared counter collector.
func MetricsHandler(stats *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stats.Snapshot())
	}
}

// SyncAllHandler reconciles every active order against its exchange.
func SyncAllHandler(service OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		synced, err := service.SyncAll(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]int{"synced": synced})
	}
}
