// Package notifier delivers best-effort customer notifications. Delivery
// failures are reported as false and logged, never returned as errors.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

const notificationsPath = "/api/v1/notifications"

// Notification kinds.
const (
	KindPurchaseConfirmation = "purchase_confirmation"
	KindProductRemoved       = "product_removed"
)

var notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cart_notifications_total",
	Help: "Notifications attempted by the cart service, by kind and result",
}, []string{"kind", "result"})

// Request is the body accepted by the notification service.
type Request struct {
	Recipient string         `json:"recipient"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Priority  string         `json:"priority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HTTPNotifier posts notifications to the notification service through a
// circuit breaker.
type HTTPNotifier struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewHTTPNotifier creates a notifier posting to baseURL.
func NewHTTPNotifier(client *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SendPurchaseConfirmation emails the buyer a summary of ticket.
func (n *HTTPNotifier) SendPurchaseConfirmation(ctx context.Context, contact string, ticket *domain.Ticket) bool {
	return n.send(ctx, KindPurchaseConfirmation, PurchaseConfirmation(contact, ticket))
}

// SendProductRemoved tells owner that an administrator removed product.
func (n *HTTPNotifier) SendProductRemoved(ctx context.Context, owner string, product *domain.Product) bool {
	return n.send(ctx, KindProductRemoved, ProductRemoved(owner, product))
}

func (n *HTTPNotifier) send(ctx context.Context, kind string, req Request) bool {
	if !looksLikeEmail(req.Recipient) {
		n.logger.WarnContext(ctx, "notification skipped, recipient has no email address",
			slog.String("kind", kind),
			slog.String("recipient", req.Recipient),
		)
		notificationsSent.WithLabelValues(kind, "skipped").Inc()
		return false
	}

	resp, err := n.client.PostJSON(ctx, n.baseURL+notificationsPath, req, nil)
	if err != nil {
		n.fail(ctx, kind, req.Recipient, err)
		return false
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		n.fail(ctx, kind, req.Recipient, httpclient.ParseResponseError(resp, "notification-service"))
		return false
	}
	_ = resp.Body.Close()

	notificationsSent.WithLabelValues(kind, "sent").Inc()
	n.logger.InfoContext(ctx, "notification sent",
		slog.String("kind", kind),
		slog.String("recipient", req.Recipient),
	)
	return true
}

func (n *HTTPNotifier) fail(ctx context.Context, kind, recipient string, err error) {
	notificationsSent.WithLabelValues(kind, "failed").Inc()
	n.logger.WarnContext(ctx, "notification failed",
		slog.String("kind", kind),
		slog.String("recipient", recipient),
		slog.String("error", err.Error()),
	)
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendPurchaseConfirmation logs the confirmation and reports success.
func (n *LogNotifier) SendPurchaseConfirmation(ctx context.Context, contact string, ticket *domain.Ticket) bool {
	return n.log(ctx, KindPurchaseConfirmation, PurchaseConfirmation(contact, ticket))
}

// SendProductRemoved logs the notice and reports success.
func (n *LogNotifier) SendProductRemoved(ctx context.Context, owner string, product *domain.Product) bool {
	return n.log(ctx, KindProductRemoved, ProductRemoved(owner, product))
}

func (n *LogNotifier) log(ctx context.Context, kind string, req Request) bool {
	notificationsSent.WithLabelValues(kind, "logged").Inc()
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", kind),
		slog.String("recipient", req.Recipient),
		slog.String("subject", req.Subject),
	)
	return true
}

// PurchaseConfirmation builds the confirmation sent after a purchase.
func PurchaseConfirmation(contact string, ticket *domain.Ticket) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your purchase. Ticket %s, total %s.\n", ticket.Code, formatAmount(ticket.Amount))
	for _, item := range ticket.Purchased {
		fmt.Fprintf(&b, "- %s x%d at %s\n", item.ProductRef, item.Quantity, formatAmount(item.Price))
	}
	if len(ticket.Unfulfilled) > 0 {
		b.WriteString("The following items were out of stock and remain in your cart:\n")
		for _, item := range ticket.Unfulfilled {
			fmt.Fprintf(&b, "- %s x%d\n", item.ProductRef, item.Quantity)
		}
	}

	return Request{
		Recipient: contact,
		Type:      "email",
		Channel:   KindPurchaseConfirmation,
		Subject:   "Purchase confirmation " + ticket.Code,
		Body:      b.String(),
		Priority:  "normal",
		Metadata: map[string]any{
			"ticket_id":   ticket.ID,
			"ticket_code": ticket.Code,
			"cart_id":     ticket.CartID,
			"amount":      ticket.Amount,
		},
	}
}

// ProductRemoved builds the notice sent when an administrator deletes a
// listing owned by someone else.
func ProductRemoved(owner string, product *domain.Product) Request {
	return Request{
		Recipient: owner,
		Type:      "email",
		Channel:   KindProductRemoved,
		Subject:   "Your product was removed",
		Body:      fmt.Sprintf("Your product %q (%s) was removed from the catalog by an administrator.", product.Title, product.Code),
		Priority:  "normal",
		Metadata: map[string]any{
			"product_id": product.ID,
			"code":       product.Code,
		},
	}
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1
}
