package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/service"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	carts   *service.CartService
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(carts *service.CartService, catalog *service.CatalogService, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: catalog,
		logger:  logger,
	}
}

// --- Request DTOs ---

// LineItemRequest is one line item in a request body. Quantities are
// checked by the cart service so they fail with INVALID_QUANTITY.
type LineItemRequest struct {
	Product  string `json:"product" validate:"required"`
	Quantity int    `json:"quantity"`
}

// LineItemsRequest is the JSON request body for creating or replacing a cart.
type LineItemsRequest struct {
	Products []LineItemRequest `json:"products" validate:"dive"`
}

// QuantityRequest is the JSON request body for adding or setting a quantity.
type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (req LineItemsRequest) lineItems() []domain.LineItem {
	items := make([]domain.LineItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, domain.LineItem{ProductRef: p.Product, Quantity: p.Quantity})
	}
	return items
}

// --- Handlers ---

// CreateCart handles POST /api/v1/carts
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var req LineItemsRequest
	if r.ContentLength != 0 {
		if err := validator.DecodeAndValidate(r, &req); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	cart, err := h.carts.CreateCart(r.Context(), req.lineItems())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusCreated, cart)
}

// ListCarts handles GET /api/v1/carts
func (h *CartHandler) ListCarts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "limit must be a positive integer"},
			})
			return
		}
		limit = n
	}

	carts, err := h.carts.ListCarts(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: carts})
}

// GetCart handles GET /api/v1/carts/{cartId}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCartByID(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

// ReplaceLineItems handles PUT /api/v1/carts/{cartId}
func (h *CartHandler) ReplaceLineItems(w http.ResponseWriter, r *http.Request) {
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	var req LineItemsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.carts.ReplaceLineItems(r.Context(), chi.URLParam(r, "cartId"), req.lineItems(), version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

// ClearLineItems handles DELETE /api/v1/carts/{cartId}
func (h *CartHandler) ClearLineItems(w http.ResponseWriter, r *http.Request) {
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.ClearLineItems(r.Context(), chi.URLParam(r, "cartId"), version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

// DeleteCart handles DELETE /api/v1/carts/{cartId}/purge
func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.DeleteCart(r.Context(), chi.URLParam(r, "cartId")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddLineItem handles POST /api/v1/carts/{cartId}/products/{productId}
func (h *CartHandler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	var req QuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.carts.AddLineItem(r.Context(), chi.URLParam(r, "cartId"), identityFrom(r), service.AddLineItemInput{
		ProductRef:      chi.URLParam(r, "productId"),
		Quantity:        req.Quantity,
		ExpectedVersion: version,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

// SetLineItemQuantity handles PUT /api/v1/carts/{cartId}/products/{productId}
func (h *CartHandler) SetLineItemQuantity(w http.ResponseWriter, r *http.Request) {
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	var req QuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	cart, err := h.carts.SetLineItemQuantity(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "productId"), req.Quantity, version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

// RemoveLineItem handles DELETE /api/v1/carts/{cartId}/products/{productId}
func (h *CartHandler) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	version, ok := expectedVersion(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveLineItem(r.Context(), chi.URLParam(r, "cartId"), chi.URLParam(r, "productId"), version)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeCart(w, http.StatusOK, cart)
}

// CheckAvailability handles GET /api/v1/carts/{cartId}/availability
func (h *CartHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCartByID(r.Context(), chi.URLParam(r, "cartId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	lines, err := h.catalog.CheckAvailability(r.Context(), cart.Products)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: lines})
}

func (h *CartHandler) writeCart(w http.ResponseWriter, status int, cart *domain.Cart) {
	setETag(w, cart.Version)
	httputil.WriteJSON(w, status, httputil.Response{Data: cart})
}
