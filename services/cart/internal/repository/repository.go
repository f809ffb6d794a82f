package repository

import (
	"context"
	"time"

	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// CartRepository defines the interface for cart persistence operations.
type CartRepository interface {
	// Create stores a new cart. It fails if a cart with the same ID exists.
	Create(ctx context.Context, cart *domain.Cart) error

	// Get retrieves a cart by its ID.
	Get(ctx context.Context, id string) (*domain.Cart, error)

	// SaveIfVersion writes cart only if the stored version still equals
	// expectedVersion, bumping cart.Version on success. It reports false when
	// another writer got there first.
	SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int64) (bool, error)

	// Delete removes a cart by its ID.
	Delete(ctx context.Context, id string) error

	// List returns the limit newest carts by creation time.
	List(ctx context.Context, limit int) ([]*domain.Cart, error)
}

// ProductRepository defines the interface for catalog persistence operations.
type ProductRepository interface {
	// GetByID retrieves a product by its ID.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// List returns the products matching filter for the requested page along
	// with the total number of matches.
	List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) ([]domain.Product, int, error)

	// Create inserts a new product.
	Create(ctx context.Context, product *domain.Product) error

	// Update modifies an existing product.
	Update(ctx context.Context, product *domain.Product) error

	// Delete removes a product by its ID.
	Delete(ctx context.Context, id string) error
}

// TicketRepository defines the interface for ticket persistence operations.
type TicketRepository interface {
	// CreateWithStock locks the products of lines, decrements stock for the
	// lines that can be satisfied and stores ticket with the resulting
	// purchased and unfulfilled sets, all in one transaction.
	CreateWithStock(ctx context.Context, ticket *domain.Ticket, lines []domain.LineItem) error

	// GetByID retrieves a ticket by its ID.
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)

	// MarkReconciled records the reconciliation time of a ticket. It reports
	// false when the ticket was already reconciled.
	MarkReconciled(ctx context.Context, id string, at time.Time) (bool, error)
}
