package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marcus-menezes/starstore-backend/internal/service"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
	"github.com/marcus-menezes/starstore-backend/pkg/httputil"
	"github.com/marcus-menezes/starstore-backend/pkg/pagination"
)

// OrderHandler handles HTTP requests for checkout and order history.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// Checkout handles POST /api/v1/orders
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.service.Checkout(ctx, sessionIDFromContext(ctx), identityFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.service.ListOrders(ctx, identityFromContext(ctx), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// GetOrder handles GET /api/v1/orders/{orderId}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("orderId is required"), h.logger)
		return
	}

	order, err := h.service.GetOrder(ctx, orderID, identityFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}

// CancelOrder handles POST /api/v1/orders/{orderId}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("orderId is required"), h.logger)
		return
	}

	order, err := h.service.CancelOrder(ctx, orderID, identityFromContext(ctx))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
