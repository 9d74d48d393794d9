package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marcus-menezes/starstore-backend/internal/domain"
	"github.com/marcus-menezes/starstore-backend/internal/service"
	apperrors "github.com/marcus-menezes/starstore-backend/pkg/errors"
	"github.com/marcus-menezes/starstore-backend/pkg/httputil"
	"github.com/marcus-menezes/starstore-backend/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	catalog ProductSource
	logger  *slog.Logger
}

// ProductSource resolves products by id; the catalog client satisfies it.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, catalog ProductSource, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		catalog: catalog,
		logger:  logger,
	}
}

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
}

// UpdateQuantityRequest is the JSON request body for updating an item's quantity.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := h.service.GetCart(ctx, sessionIDFromContext(ctx), identityFromContext(ctx))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// AddItem handles POST /api/v1/cart/items. The product is resolved from the
// catalog so the cart stores a trusted snapshot, not client-supplied prices.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	view := h.service.AddItem(ctx, sessionIDFromContext(ctx), identityFromContext(ctx), *product)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	var req UpdateQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	view := h.service.UpdateQuantity(ctx, sessionIDFromContext(ctx), identityFromContext(ctx), productID, req.Quantity)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID := chi.URLParam(r, "productId")
	if productID == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("productId is required"), h.logger)
		return
	}

	view := h.service.RemoveItem(ctx, sessionIDFromContext(ctx), identityFromContext(ctx), productID)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := h.service.Clear(ctx, sessionIDFromContext(ctx), identityFromContext(ctx))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: view})
}
