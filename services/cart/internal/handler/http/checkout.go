package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/services/cart/internal/service"
)

// CheckoutHandler handles purchase and ticket endpoints.
type CheckoutHandler struct {
	checkout *service.CheckoutService
	tickets  *service.TicketService
	logger   *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(checkout *service.CheckoutService, tickets *service.TicketService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		tickets:  tickets,
		logger:   logger,
	}
}

// Purchase handles POST /api/v1/carts/{cartId}/purchase. Responses use the
// status/payload envelope.
func (h *CheckoutHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.checkout.Purchase(r.Context(), chi.URLParam(r, "cartId"), identityFrom(r))
	if err != nil {
		httputil.WriteStatusError(w, r, err, h.logger)
		return
	}

	httputil.WriteStatusSuccess(w, http.StatusOK, outcome)
}

// GetTicket handles GET /api/v1/tickets/{ticketId}
func (h *CheckoutHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.tickets.GetTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ticket})
}

// ReconcileTicket handles POST /api/v1/tickets/{ticketId}/reconcile
func (h *CheckoutHandler) ReconcileTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ticketId")
	if err := h.checkout.ReconcileTicket(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	ticket, err := h.tickets.GetTicket(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ticket})
}
