package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/repository"
)

// CartReader looks carts up by ID.
type CartReader interface {
	GetCartByID(ctx context.Context, id string) (*domain.Cart, error)
}

// TicketService turns carts into tickets, settling stock as it goes.
type TicketService struct {
	carts  CartReader
	repo   repository.TicketRepository
	logger *slog.Logger
}

// NewTicketService creates a new ticket service.
func NewTicketService(carts CartReader, repo repository.TicketRepository, logger *slog.Logger) *TicketService {
	return &TicketService{
		carts:  carts,
		repo:   repo,
		logger: logger,
	}
}

// maxCodeAttempts bounds how many fresh ticket codes are tried when a
// generated code collides with a stored one.
const maxCodeAttempts = 3

// CreateTicket settles the current contents of a cart against stock and
// records the result for purchaser. The cart itself is not modified. The
// ticket is bound to the cart version it was settled from, so a second
// purchase of the same version fails with domain.ErrCartAlreadyPurchased.
func (s *TicketService) CreateTicket(ctx context.Context, cartID, purchaser string) (*domain.Ticket, error) {
	cart, err := s.carts.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("get cart for ticket: %w", err)
	}

	var ticket *domain.Ticket
	for attempt := 1; ; attempt++ {
		id := uuid.New()
		ticket = &domain.Ticket{
			ID:          id.String(),
			Code:        ticketCode(id),
			CartID:      cart.ID,
			CartVersion: cart.Version,
			Purchaser:   purchaser,
			PurchasedAt: time.Now().UTC(),
		}

		err = s.repo.CreateWithStock(ctx, ticket, cart.Products)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrTicketCodeTaken) || attempt == maxCodeAttempts {
			return nil, fmt.Errorf("create ticket: %w", err)
		}
		s.logger.WarnContext(ctx, "ticket code collision, regenerating",
			slog.String("cart_id", cart.ID),
			slog.String("code", ticket.Code),
			slog.Int("attempt", attempt),
		)
	}

	s.logger.InfoContext(ctx, "ticket created",
		slog.String("ticket_id", ticket.ID),
		slog.String("cart_id", cart.ID),
		slog.Int64("cart_version", cart.Version),
		slog.Int("purchased", len(ticket.Purchased)),
		slog.Int("unfulfilled", len(ticket.Unfulfilled)),
		slog.Int64("amount", ticket.Amount),
	)
	return ticket, nil
}

// ticketCode is the human-facing reference of a ticket: the first 64 random
// bits of its ID in upper-case hex.
func ticketCode(id uuid.UUID) string {
	return "TKT-" + strings.ToUpper(hex.EncodeToString(id[:8]))
}

// GetTicket retrieves a ticket by ID.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.repo.GetByID(ctx, id)
}

// MarkReconciled records that the cart of a ticket was reconciled. It
// reports false if that had already been recorded.
func (s *TicketService) MarkReconciled(ctx context.Context, id string) (bool, error) {
	ok, err := s.repo.MarkReconciled(ctx, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark ticket reconciled: %w", err)
	}
	return ok, nil
}
