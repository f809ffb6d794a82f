package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/event"
)

// CartStore is the part of the cart service the checkout depends on.
type CartStore interface {
	GetCartByID(ctx context.Context, id string) (*domain.Cart, error)
	ReplaceLineItems(ctx context.Context, cartID string, items []domain.LineItem, expectedVersion int64) (*domain.Cart, error)
}

// TicketFactory creates and tracks purchase tickets.
type TicketFactory interface {
	CreateTicket(ctx context.Context, cartID, purchaser string) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
	MarkReconciled(ctx context.Context, id string) (bool, error)
}

// ReconcileConfig controls how often a failed cart reconciliation is retried
// before it is handed to the retry queue, and how long the steps after
// ticket creation may take.
type ReconcileConfig struct {
	Attempts int
	Backoff  time.Duration
	// NotifyTimeout caps the purchase confirmation.
	NotifyTimeout time.Duration
	// Timeout bounds reconciliation and its bookkeeping. It runs detached
	// from the caller's context so stock already sold is always followed up.
	Timeout time.Duration
}

const (
	defaultNotifyTimeout    = 5 * time.Second
	defaultReconcileTimeout = 15 * time.Second
)

// DefaultReconcileConfig returns three attempts starting at 100ms, a 5s
// notification cap and a 15s reconciliation deadline.
func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Attempts:      3,
		Backoff:       100 * time.Millisecond,
		NotifyTimeout: defaultNotifyTimeout,
		Timeout:       defaultReconcileTimeout,
	}
}

// CheckoutService converts carts into purchases and reconciles the cart with
// what was actually sold.
type CheckoutService struct {
	carts    CartStore
	tickets  TicketFactory
	notifier Notifier
	producer *event.Producer
	logger   *slog.Logger
	cfg      ReconcileConfig
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(carts CartStore, tickets TicketFactory, notifier Notifier, producer *event.Producer, logger *slog.Logger, cfg ReconcileConfig) *CheckoutService {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultReconcileTimeout
	}
	return &CheckoutService{
		carts:    carts,
		tickets:  tickets,
		notifier: notifier,
		producer: producer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Purchase buys the contents of a cart for buyer. Stock is settled by the
// ticket factory; the buyer is notified best-effort; then the cart is cut
// down to the items that could not be sold. A notification failure or a
// reconciliation that keeps failing is reported in the outcome, not as an
// error. An unreconciled ticket is queued for the retry consumer.
//
// Once the ticket exists, stock has been taken, so everything after it runs
// on a context detached from ctx: a caller that gives up or a slow notifier
// cannot leave sold items in the cart.
func (s *CheckoutService) Purchase(ctx context.Context, cartID string, buyer domain.Identity) (*domain.PurchaseOutcome, error) {
	start := time.Now()
	defer func() { checkoutPurchaseDuration.Observe(time.Since(start).Seconds()) }()

	if _, err := s.carts.GetCartByID(ctx, cartID); err != nil {
		return nil, err
	}

	ticket, err := s.tickets.CreateTicket(ctx, cartID, buyer.Email)
	if err != nil {
		if errors.Is(err, domain.ErrCartAlreadyPurchased) {
			checkoutPurchases.WithLabelValues(purchaseResultDuplicate).Inc()
			s.logger.WarnContext(ctx, "cart already purchased at this version",
				slog.String("cart_id", cartID),
			)
			return nil, err
		}
		checkoutPurchases.WithLabelValues(purchaseResultTicketFailed).Inc()
		s.logger.ErrorContext(ctx, "ticket creation failed",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.TicketCreationFailed("could not create a ticket for cart "+cartID, err)
	}

	notified := s.notify(ctx, buyer.Email, ticket)

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)
	defer cancel()

	reconciled := true
	if err := s.reconcileWithRetry(bgCtx, ticket); err != nil {
		reconciled = false
		if perr := s.producer.PublishReconciliationRequired(bgCtx, ticket, err); perr != nil {
			s.logger.ErrorContext(ctx, "cart reconciliation failed and could not be queued",
				slog.String("cart_id", cartID),
				slog.String("ticket_id", ticket.ID),
				slog.String("error", err.Error()),
				slog.String("publish_error", perr.Error()),
			)
		} else {
			s.logger.ErrorContext(ctx, "cart reconciliation failed, queued for retry",
				slog.String("cart_id", cartID),
				slog.String("ticket_id", ticket.ID),
				slog.String("error", err.Error()),
			)
		}
	} else if _, err := s.tickets.MarkReconciled(bgCtx, ticket.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to mark ticket reconciled",
			slog.String("ticket_id", ticket.ID),
			slog.String("error", err.Error()),
		)
	}

	outcome := domain.NewPurchaseOutcome(ticket, notified, reconciled)

	if err := s.producer.PublishCartPurchased(bgCtx, ticket, outcome); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.purchased event",
			slog.String("ticket_id", ticket.ID),
			slog.String("error", err.Error()),
		)
	}

	switch {
	case !reconciled:
		checkoutPurchases.WithLabelValues(purchaseResultUnreconciled).Inc()
	case !notified:
		checkoutPurchases.WithLabelValues(purchaseResultNotificationFailed).Inc()
	default:
		checkoutPurchases.WithLabelValues(purchaseResultSuccess).Inc()
	}

	s.logger.InfoContext(ctx, "cart purchased",
		slog.String("cart_id", cartID),
		slog.String("ticket_id", ticket.ID),
		slog.Int("purchased", len(outcome.Purchased)),
		slog.Int("unfulfilled", len(outcome.Unfulfilled)),
		slog.Bool("notification_ok", outcome.NotificationOK),
		slog.Bool("reconciled", outcome.Reconciled),
	)
	return outcome, nil
}

// notify sends the purchase confirmation under its own deadline.
func (s *CheckoutService) notify(ctx context.Context, contact string, ticket *domain.Ticket) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	return s.notifier.SendPurchaseConfirmation(ctx, contact, ticket)
}

// ReconcileTicket reconciles the cart of a stored ticket. Tickets already
// reconciled are left alone.
func (s *CheckoutService) ReconcileTicket(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.IsReconciled() {
		s.logger.DebugContext(ctx, "ticket already reconciled",
			slog.String("ticket_id", ticketID),
		)
		return nil
	}

	if err := s.reconcileWithRetry(ctx, ticket); err != nil {
		return err
	}
	if _, err := s.tickets.MarkReconciled(ctx, ticket.ID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "ticket reconciled",
		slog.String("ticket_id", ticket.ID),
		slog.String("cart_id", ticket.CartID),
	)
	return nil
}

func (s *CheckoutService) reconcileWithRetry(ctx context.Context, ticket *domain.Ticket) error {
	var err error
	for attempt := 0; attempt < s.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("reconcile cart %s: %w", ticket.CartID, ctx.Err())
			case <-time.After(s.cfg.Backoff << (attempt - 1)):
			}
		}

		if err = s.reconcile(ctx, ticket); err == nil {
			checkoutReconcileAttempts.WithLabelValues("success").Inc()
			return nil
		}
		checkoutReconcileAttempts.WithLabelValues("failure").Inc()
		if !apperrors.IsRetryable(err) {
			return err
		}
		s.logger.WarnContext(ctx, "cart reconciliation attempt failed",
			slog.String("ticket_id", ticket.ID),
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", s.cfg.Attempts),
			slog.String("error", err.Error()),
		)
	}
	return fmt.Errorf("reconcile cart %s after %d attempts: %w", ticket.CartID, s.cfg.Attempts, err)
}

// reconcile keeps exactly the line items of the current cart whose product
// is in the ticket's unfulfilled set. A cart that no longer exists has
// nothing left to reconcile. A cart still at the purchased version is written
// even when nothing changes, so its next purchase gets a new version.
func (s *CheckoutService) reconcile(ctx context.Context, ticket *domain.Ticket) error {
	cart, err := s.carts.GetCartByID(ctx, ticket.CartID)
	if err != nil {
		if errors.Is(err, domain.ErrCartNotFound) {
			s.logger.WarnContext(ctx, "cart gone before reconciliation",
				slog.String("cart_id", ticket.CartID),
				slog.String("ticket_id", ticket.ID),
			)
			return nil
		}
		return err
	}

	kept := cart.RetainOnly(domain.Refs(ticket.Unfulfilled))
	if len(kept) == len(cart.Products) && cart.Version != ticket.CartVersion {
		return nil
	}

	_, err = s.carts.ReplaceLineItems(ctx, cart.ID, kept, cart.Version)
	return err
}
