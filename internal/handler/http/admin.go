package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/internal/domain"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/httputil"
	"github.com/jhonHA2901/Crepes-and-Coffe1-sub001/pkg/validator"
)

// AdminHandler serves the admin-only routes.
type AdminHandler struct {
	orders     OrderService
	settlement SettlementService
	logger     *slog.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(orders OrderService, settlement SettlementService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{orders: orders, settlement: settlement, logger: logger}
}

// SetOrderStatus handles PUT /api/v1/admin/orders/{id}/status
func (h *AdminHandler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req SetStatusRequest
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

	order, err := h.settlement.AdminSetStatus(r.Context(), id.String(), domain.Status(req.Status), req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// GetInventoryItem handles GET /api/v1/admin/inventory/{id}
func (h *AdminHandler) GetInventoryItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.orders.GetInventoryItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: item})
}
