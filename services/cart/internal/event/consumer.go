package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// TicketReconciler defines the interface required by the event consumer.
type TicketReconciler interface {
	ReconcileTicket(ctx context.Context, ticketID string) error
}

// Consumer processes incoming Kafka events for the cart service.
type Consumer struct {
	logger  *slog.Logger
	service TicketReconciler
}

// NewConsumer creates a new event consumer for the cart service.
func NewConsumer(service TicketReconciler, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleReconciliationRequired retries the reconciliation of the ticket named
// by a cart.reconciliation_required event. Tickets that no longer exist are
// acknowledged so they do not cycle through the retry path.
func (c *Consumer) HandleReconciliationRequired(ctx context.Context, event *pkgkafka.Event) error {
	var data ReconciliationRequiredData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal cart.reconciliation_required data: %w", err)
	}
	if data.TicketID == "" {
		return fmt.Errorf("cart.reconciliation_required event %s has no ticket id", event.EventID)
	}

	c.logger.InfoContext(ctx, "processing cart.reconciliation_required event",
		slog.String("ticket_id", data.TicketID),
		slog.String("cart_id", data.CartID),
	)

	if err := c.service.ReconcileTicket(ctx, data.TicketID); err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			c.logger.WarnContext(ctx, "ticket for reconciliation not found, skipping",
				slog.String("ticket_id", data.TicketID),
			)
			return nil
		}
		return fmt.Errorf("reconcile ticket %s: %w", data.TicketID, err)
	}

	c.logger.InfoContext(ctx, "ticket reconciled from retry queue",
		slog.String("ticket_id", data.TicketID),
	)
	return nil
}
