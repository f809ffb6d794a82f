package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// Kafka topics for cart domain events.
var (
	TopicCartUpdated                = pkgkafka.Topic("cart", "updated")
	TopicCartCleared                = pkgkafka.Topic("cart", "cleared")
	TopicCartPurchased              = pkgkafka.Topic("cart", "purchased")
	TopicCartReconciliationRequired = pkgkafka.Topic("cart", "reconciliation_required")
)

// Aggregate type constants.
const (
	AggregateTypeCart   = "cart"
	AggregateTypeTicket = "ticket"
)

// Source identifier for events originating from the cart service.
const SourceCartService = "cart-service"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartID    string            `json:"cart_id"`
	Products  []domain.LineItem `json:"products"`
	ItemCount int               `json:"item_count"`
	Version   int64             `json:"version"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	CartID string `json:"cart_id"`
}

// CartPurchasedData is the payload for a cart.purchased event.
type CartPurchasedData struct {
	CartID         string                 `json:"cart_id"`
	TicketID       string                 `json:"ticket_id"`
	TicketCode     string                 `json:"ticket_code"`
	Purchaser      string                 `json:"purchaser"`
	Amount         int64                  `json:"amount"`
	Purchased      []domain.PurchasedItem `json:"purchased"`
	Unfulfilled    []domain.LineItem      `json:"unfulfilled"`
	NotificationOK bool                   `json:"notification_ok"`
	Reconciled     bool                   `json:"reconciled"`
}

// ReconciliationRequiredData is the payload for a cart.reconciliation_required
// event. The consumer only needs the ticket ID; the rest is for operators.
type ReconciliationRequiredData struct {
	TicketID string `json:"ticket_id"`
	CartID   string `json:"cart_id"`
	Reason   string `json:"reason"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the cart service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		CartID:    cart.ID,
		Products:  cart.Products,
		ItemCount: cart.ItemCount(),
		Version:   cart.Version,
	}
	if err := p.publish(ctx, TopicCartUpdated, cart.ID, AggregateTypeCart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_id", cart.ID),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, cartID string) error {
	if err := p.publish(ctx, TopicCartCleared, cartID, AggregateTypeCart, CartClearedData{CartID: cartID}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event",
		slog.String("cart_id", cartID),
	)
	return nil
}

// PublishCartPurchased publishes a cart.purchased event keyed by cart.
func (p *Producer) PublishCartPurchased(ctx context.Context, ticket *domain.Ticket, outcome *domain.PurchaseOutcome) error {
	data := CartPurchasedData{
		CartID:         ticket.CartID,
		TicketID:       ticket.ID,
		TicketCode:     ticket.Code,
		Purchaser:      ticket.Purchaser,
		Amount:         ticket.Amount,
		Purchased:      outcome.Purchased,
		Unfulfilled:    outcome.Unfulfilled,
		NotificationOK: outcome.NotificationOK,
		Reconciled:     outcome.Reconciled,
	}
	if err := p.publish(ctx, TopicCartPurchased, ticket.CartID, AggregateTypeCart, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.purchased event",
		slog.String("cart_id", ticket.CartID),
		slog.String("ticket_id", ticket.ID),
	)
	return nil
}

// PublishReconciliationRequired queues ticket for another reconciliation
// attempt by the retry consumer.
func (p *Producer) PublishReconciliationRequired(ctx context.Context, ticket *domain.Ticket, cause error) error {
	data := ReconciliationRequiredData{
		TicketID: ticket.ID,
		CartID:   ticket.CartID,
	}
	if cause != nil {
		data.Reason = cause.Error()
	}
	if err := p.publish(ctx, TopicCartReconciliationRequired, ticket.ID, AggregateTypeTicket, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.reconciliation_required event",
		slog.String("ticket_id", ticket.ID),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if userID := logger.UserIDFromContext(ctx); userID != "" {
		event.WithMetadata("user_id", userID)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
