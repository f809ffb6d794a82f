package domain

import "time"

// Purchase outcome statuses.
const (
	PurchaseStatusSuccess            = "success"
	PurchaseStatusNotificationFailed = "success_notification_failed"
)

// PurchasedItem is a line item that was sold, with its unit price at sale.
type PurchasedItem struct {
	ProductRef string `json:"product"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

// Ref returns the product reference.
func (p PurchasedItem) Ref() string { return p.ProductRef }

// Ticket records one purchase attempt. Every purchased entry had its stock
// decremented; no unfulfilled entry did. At most one ticket exists per
// CartID and CartVersion.
type Ticket struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	CartID       string          `json:"cart_id"`
	CartVersion  int64           `json:"cart_version"`
	Purchaser    string          `json:"purchaser"`
	Amount       int64           `json:"amount"`
	Purchased    []PurchasedItem `json:"purchased"`
	Unfulfilled  []LineItem      `json:"unfulfilled"`
	PurchasedAt  time.Time       `json:"purchased_at"`
	ReconciledAt *time.Time      `json:"reconciled_at,omitempty"`
}

// IsReconciled reports whether the cart has been reconciled against t.
func (t *Ticket) IsReconciled() bool {
	return t.ReconciledAt != nil
}

// PurchaseOutcome is the result of converting a cart into a ticket.
type PurchaseOutcome struct {
	TicketID       string          `json:"ticket_id"`
	Purchased      []PurchasedItem `json:"purchased"`
	Unfulfilled    []LineItem      `json:"unfulfilled"`
	NotificationOK bool            `json:"notification_ok"`
	Reconciled     bool            `json:"reconciled"`
	Status         string          `json:"status"`
}

// NewPurchaseOutcome builds the outcome for ticket t.
func NewPurchaseOutcome(t *Ticket, notificationOK, reconciled bool) *PurchaseOutcome {
	status := PurchaseStatusSuccess
	if !notificationOK {
		status = PurchaseStatusNotificationFailed
	}
	purchased := t.Purchased
	if purchased == nil {
		purchased = []PurchasedItem{}
	}
	unfulfilled := t.Unfulfilled
	if unfulfilled == nil {
		unfulfilled = []LineItem{}
	}
	return &PurchaseOutcome{
		TicketID:       t.ID,
		Purchased:      purchased,
		Unfulfilled:    unfulfilled,
		NotificationOK: notificationOK,
		Reconciled:     reconciled,
		Status:         status,
	}
}
