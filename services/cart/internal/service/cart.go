package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/event"
	"github.com/utafrali/storefront/services/cart/internal/repository"
)

// Cart listing bounds.
const (
	DefaultCartListLimit = 100
	MaxCartListLimit     = 1000
)

// ProductLookup resolves product references for cart operations.
type ProductLookup interface {
	GetByID(ctx context.Context, ref string) (*domain.Product, error)
}

// AddLineItemInput holds the parameters for adding a product to a cart.
type AddLineItemInput struct {
	ProductRef      string
	Quantity        int
	ExpectedVersion int64
}

// CartService implements the business logic for cart operations.
type CartService struct {
	repo     repository.CartRepository
	catalog  ProductLookup
	producer *event.Producer
	logger   *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, catalog ProductLookup, producer *event.Producer, logger *slog.Logger) *CartService {
	return &CartService{
		repo:     repo,
		catalog:  catalog,
		producer: producer,
		logger:   logger,
	}
}

// CreateCart creates a cart holding items, merging duplicate references.
func (s *CartService) CreateCart(ctx context.Context, items []domain.LineItem) (*domain.Cart, error) {
	cart, err := domain.NewCart(uuid.New().String(), items, time.Now().UTC())
	if err != nil {
		return nil, invalidQuantity(err)
	}

	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "cart created",
		slog.String("cart_id", cart.ID),
		slog.Int("line_items", len(cart.Products)),
	)
	return cart, nil
}

// GetCartByID retrieves a cart. A missing cart satisfies
// errors.Is(err, domain.ErrCartNotFound).
func (s *CartService) GetCartByID(ctx context.Context, id string) (*domain.Cart, error) {
	if id == "" {
		return nil, apperrors.NotFoundOf("cart", id, domain.ErrCartNotFound)
	}
	return s.repo.Get(ctx, id)
}

// ListCarts returns up to limit carts, newest first.
func (s *CartService) ListCarts(ctx context.Context, limit int) ([]*domain.Cart, error) {
	if limit <= 0 {
		limit = DefaultCartListLimit
	}
	if limit > MaxCartListLimit {
		limit = MaxCartListLimit
	}

	carts, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list carts: %w", err)
	}
	return carts, nil
}

// AddLineItem adds quantity units of a product to a cart, merging into an
// existing line item. Callers may not add products they own.
func (s *CartService) AddLineItem(ctx context.Context, cartID string, actor domain.Identity, input AddLineItemInput) (*domain.Cart, error) {
	if input.Quantity <= 0 {
		return nil, invalidQuantity(fmt.Errorf("%w: quantity must be greater than 0", domain.ErrInvalidQuantity))
	}

	cart, saved, err := s.update(ctx, cartID, input.ExpectedVersion, func(cart *domain.Cart) (bool, error) {
		product, err := s.catalog.GetByID(ctx, input.ProductRef)
		if err != nil {
			return false, err
		}
		if !product.IsActive() {
			return false, apperrors.InvalidInput(fmt.Sprintf("product %s is not available", product.ID))
		}
		if actor.Owns(product.Owner) {
			return false, apperrors.Forbidden("you cannot add your own product to a cart")
		}
		cart.AddQuantity(product.ID, input.Quantity)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if saved {
		s.publishUpdated(ctx, cart)
	}

	s.logger.InfoContext(ctx, "line item added to cart",
		slog.String("cart_id", cartID),
		slog.String("product_id", input.ProductRef),
		slog.Int("quantity", input.Quantity),
	)
	return cart, nil
}

// RemoveLineItem removes a product from a cart. Removing an absent product
// returns the cart unchanged without writing it.
func (s *CartService) RemoveLineItem(ctx context.Context, cartID, productRef string, expectedVersion int64) (*domain.Cart, error) {
	cart, saved, err := s.update(ctx, cartID, expectedVersion, func(cart *domain.Cart) (bool, error) {
		return cart.Remove(productRef), nil
	})
	if err != nil {
		return nil, err
	}
	if saved {
		s.publishUpdated(ctx, cart)
		s.logger.InfoContext(ctx, "line item removed from cart",
			slog.String("cart_id", cartID),
			slog.String("product_id", productRef),
		)
	}
	return cart, nil
}

// ReplaceLineItems replaces every line item of a cart with items.
func (s *CartService) ReplaceLineItems(ctx context.Context, cartID string, items []domain.LineItem, expectedVersion int64) (*domain.Cart, error) {
	products, err := domain.NormalizeLineItems(items)
	if err != nil {
		return nil, invalidQuantity(err)
	}

	cart, saved, err := s.update(ctx, cartID, expectedVersion, func(cart *domain.Cart) (bool, error) {
		cart.Products = products
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if saved {
		s.publishUpdated(ctx, cart)
	}

	s.logger.InfoContext(ctx, "cart line items replaced",
		slog.String("cart_id", cartID),
		slog.Int("line_items", len(products)),
	)
	return cart, nil
}

// SetLineItemQuantity sets the quantity of a product already in a cart.
func (s *CartService) SetLineItemQuantity(ctx context.Context, cartID, productRef string, quantity int, expectedVersion int64) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, invalidQuantity(fmt.Errorf("%w: quantity must be greater than 0", domain.ErrInvalidQuantity))
	}

	cart, saved, err := s.update(ctx, cartID, expectedVersion, func(cart *domain.Cart) (bool, error) {
		if err := cart.SetQuantity(productRef, quantity); err != nil {
			if errors.Is(err, domain.ErrLineItemNotFound) {
				return false, apperrors.NotFoundOf("line item", productRef, domain.ErrLineItemNotFound)
			}
			return false, invalidQuantity(err)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if saved {
		s.publishUpdated(ctx, cart)
	}

	s.logger.InfoContext(ctx, "line item quantity set",
		slog.String("cart_id", cartID),
		slog.String("product_id", productRef),
		slog.Int("quantity", quantity),
	)
	return cart, nil
}

// ClearLineItems empties a cart. The cart itself is kept.
func (s *CartService) ClearLineItems(ctx context.Context, cartID string, expectedVersion int64) (*domain.Cart, error) {
	cart, saved, err := s.update(ctx, cartID, expectedVersion, func(cart *domain.Cart) (bool, error) {
		if cart.IsEmpty() {
			return false, nil
		}
		cart.Products = []domain.LineItem{}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if saved {
		s.publishCleared(ctx, cartID)
		s.logger.InfoContext(ctx, "cart cleared",
			slog.String("cart_id", cartID),
		)
	}
	return cart, nil
}

// DeleteCart removes a cart entirely.
func (s *CartService) DeleteCart(ctx context.Context, cartID string) error {
	if err := s.repo.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	s.publishCleared(ctx, cartID)

	s.logger.InfoContext(ctx, "cart deleted",
		slog.String("cart_id", cartID),
	)
	return nil
}

// update runs one optimistic read-modify-write cycle. fn sees the stored
// cart and reports whether it changed it; an unchanged cart is not written.
// The write only succeeds if nobody else wrote the cart since it was read.
func (s *CartService) update(ctx context.Context, cartID string, expectedVersion int64, fn func(*domain.Cart) (bool, error)) (*domain.Cart, bool, error) {
	cart, err := s.GetCartByID(ctx, cartID)
	if err != nil {
		return nil, false, fmt.Errorf("get cart for update: %w", err)
	}
	if expectedVersion != domain.AnyVersion && cart.Version != expectedVersion {
		return nil, false, apperrors.Conflict(fmt.Sprintf("cart is at version %d, not %d", cart.Version, expectedVersion))
	}

	readVersion := cart.Version
	changed, err := fn(cart)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return cart, false, nil
	}

	cart.UpdatedAt = time.Now().UTC()

	ok, err := s.repo.SaveIfVersion(ctx, cart, readVersion)
	if err != nil {
		return nil, false, fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return nil, false, apperrors.Conflict("cart was modified concurrently, please retry")
	}
	return cart, true, nil
}

func (s *CartService) publishUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("cart_id", cart.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CartService) publishCleared(ctx context.Context, cartID string) {
	if err := s.producer.PublishCartCleared(ctx, cartID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
	}
}

func invalidQuantity(err error) error {
	return apperrors.InvalidInputOf("INVALID_QUANTITY", err.Error(), domain.ErrInvalidQuantity)
}
