package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/service"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/httputil"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/middleware"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/pagination"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/validator"
)

const maxBodyBytes = 1 << 20

// OrderService is the order read and create surface.
type OrderService interface {
	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id string, actor service.Actor) (*domain.Order, error)
	GetOrderStatus(ctx context.Context, id string, actor service.Actor) (domain.StatusView, error)
	ListOrders(ctx context.Context, actor service.Actor, status domain.Status, page pagination.Params) (pagination.Result[domain.Order], error)
	GetInventoryItem(ctx context.Context, id string) (*domain.InventoryItem, error)
}

// SettlementService drives status changes requested over HTTP.
type SettlementService interface {
	AdminSetStatus(ctx context.Context, orderID string, target domain.Status, reason string) (*domain.Order, error)
	SimulatePayment(ctx context.Context, orderID string, actor service.Actor) (*domain.Order, error)
}

// CheckoutService opens payment intents.
type CheckoutService interface {
	Checkout(ctx context.Context, orderID string, actor service.Actor, payer domain.Payer) (domain.PaymentIntent, error)
}

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orders     OrderService
	settlement SettlementService
	checkout   CheckoutService
	logger     *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(orders OrderService, settlement SettlementService, checkout CheckoutService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders:     orders,
		settlement: settlement,
		checkout:   checkout,
		logger:     logger,
	}
}

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID: middleware.UserIDFromContext(r.Context()),
		Family: req.family(),
		Lines:  req.lines(),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))
	switch status {
	case "", domain.StatusPending, domain.StatusPaid, domain.StatusConfirmed, domain.StatusCancelled:
	default:
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "unknown status: " + string(status)},
		})
		return
	}

	result, err := h.orders.ListOrders(r.Context(), actorFrom(r), status, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id.String(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// GetOrderStatus handles GET /api/v1/orders/{id}/status
func (h *OrderHandler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	view, err := h.orders.GetOrderStatus(r.Context(), id.String(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// Checkout handles POST /api/v1/orders/{id}/checkout
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	payer := domain.Payer{UserID: middleware.UserIDFromContext(r.Context())}
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		payer.Email = claims.Email
	}

	intent, err := h.checkout.Checkout(r.Context(), id.String(), actorFrom(r), payer)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: intent})
}

// SimulatePayment handles POST /api/v1/orders/{id}/simulate-payment
func (h *OrderHandler) SimulatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.settlement.SimulatePayment(r.Context(), id.String(), actorFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
