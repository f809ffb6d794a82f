package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/slug"
	"github.com/utafrali/storefront/services/cart/internal/domain"
	"github.com/utafrali/storefront/services/cart/internal/repository"
)

const (
	maxCodeLength = 64
	// DefaultAvailabilityConcurrency bounds concurrent product lookups in
	// CheckAvailability.
	DefaultAvailabilityConcurrency = 8
)

// Notifier delivers best-effort notifications. A false return means the
// notification was not delivered; it is never an error.
type Notifier interface {
	SendPurchaseConfirmation(ctx context.Context, contact string, ticket *domain.Ticket) bool
	SendProductRemoved(ctx context.Context, owner string, product *domain.Product) bool
}

// CreateProductInput holds the parameters for creating a product.
type CreateProductInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Code        string `json:"code" validate:"omitempty,max=64"`
	Price       int64  `json:"price" validate:"gte=0"`
	Stock       int    `json:"stock" validate:"gte=0"`
	Category    string `json:"category" validate:"required,max=100"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UpdateProductInput holds the fields of a product that may change. Nil
// fields are left as they are.
type UpdateProductInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Code        *string `json:"code" validate:"omitempty,min=1,max=64"`
	Price       *int64  `json:"price" validate:"omitempty,gte=0"`
	Stock       *int    `json:"stock" validate:"omitempty,gte=0"`
	Category    *string `json:"category" validate:"omitempty,min=1,max=100"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

// Availability is the stock check result for one cart line.
type Availability struct {
	ProductRef string `json:"product"`
	Requested  int    `json:"requested"`
	Stock      int    `json:"stock"`
	Known      bool   `json:"known"`
	Active     bool   `json:"active"`
	Available  bool   `json:"available"`
}

// CatalogService implements the business logic for the product catalog.
type CatalogService struct {
	repo          repository.ProductRepository
	notifier      Notifier
	logger        *slog.Logger
	maxConcurrent int
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(repo repository.ProductRepository, notifier Notifier, logger *slog.Logger, maxConcurrent int) *CatalogService {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultAvailabilityConcurrency
	}
	return &CatalogService{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// GetByID retrieves a product by ID.
func (s *CatalogService) GetByID(ctx context.Context, ref string) (*domain.Product, error) {
	if ref == "" {
		return nil, apperrors.NotFoundOf("product", ref, domain.ErrProductNotFound)
	}
	return s.repo.GetByID(ctx, ref)
}

// IsInStock reports whether quantity units of ref can currently be sold.
// Unknown products and lookup failures report false.
func (s *CatalogService) IsInStock(ctx context.Context, ref string, quantity int) bool {
	p, err := s.GetByID(ctx, ref)
	if err != nil {
		if !errors.Is(err, domain.ErrProductNotFound) {
			s.logger.WarnContext(ctx, "stock lookup failed",
				slog.String("product_id", ref),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	return p.HasStock(quantity)
}

// List returns one page of products matching filter.
func (s *CatalogService) List(ctx context.Context, filter domain.ProductFilter, page pagination.Params) (pagination.Result[domain.Product], error) {
	switch filter.Sort {
	case "", domain.SortPriceAsc, domain.SortPriceDesc:
	default:
		return pagination.Result[domain.Product]{}, apperrors.InvalidInput("sort must be one of: asc desc")
	}

	products, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return pagination.Result[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	return pagination.NewResult(products, total, page), nil
}

// Create adds a listing owned by actor. Administrators create house
// listings; premium users list under their email address.
func (s *CatalogService) Create(ctx context.Context, actor domain.Identity, input CreateProductInput) (*domain.Product, error) {
	owner := domain.OwnerAdmin
	switch actor.Role {
	case domain.RoleAdmin:
	case domain.RolePremium:
		if actor.Email == "" {
			return nil, apperrors.InvalidInput("an email address is required to list products")
		}
		owner = actor.Email
	default:
		return nil, apperrors.Forbidden("only premium users and administrators can list products")
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.InvalidInput("title is required")
	}
	if input.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}
	if input.Stock < 0 {
		return nil, apperrors.InvalidInput("stock must not be negative")
	}

	id := uuid.New().String()
	code := strings.TrimSpace(input.Code)
	if code == "" {
		code = slug.WithSuffix(title, id[:8], maxCodeLength)
	}
	status := input.Status
	if status == "" {
		status = domain.ProductStatusActive
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:          id,
		Title:       title,
		Description: input.Description,
		Code:        code,
		Price:       input.Price,
		Stock:       input.Stock,
		Category:    input.Category,
		Owner:       owner,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID),
		slog.String("code", product.Code),
		slog.String("owner", product.Owner),
	)
	return product, nil
}

// Update modifies a listing. Only administrators and the owner may do so.
func (s *CatalogService) Update(ctx context.Context, actor domain.Identity, id string, input UpdateProductInput) (*domain.Product, error) {
	product, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(product.Owner) {
		return nil, apperrors.Forbidden("only the owner or an administrator can modify this product")
	}

	if input.Title != nil {
		product.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		product.Description = *input.Description
	}
	if input.Code != nil {
		product.Code = strings.TrimSpace(*input.Code)
	}
	if input.Price != nil {
		if *input.Price < 0 {
			return nil, apperrors.InvalidInput("price must not be negative")
		}
		product.Price = *input.Price
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return nil, apperrors.InvalidInput("stock must not be negative")
		}
		product.Stock = *input.Stock
	}
	if input.Category != nil {
		product.Category = *input.Category
	}
	if input.Status != nil {
		product.Status = *input.Status
	}
	product.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.logger.InfoContext(ctx, "product updated",
		slog.String("product_id", product.ID),
		slog.String("actor", actor.UserID),
	)
	return product, nil
}

// Delete removes a listing. Only administrators and the owner may do so.
// When an administrator removes someone else's listing the owner is sent a
// best-effort notice.
func (s *CatalogService) Delete(ctx context.Context, actor domain.Identity, id string) error {
	product, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(product.Owner) {
		return apperrors.Forbidden("only the owner or an administrator can delete this product")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	if actor.IsAdmin() && product.Owner != domain.OwnerAdmin && !actor.Owns(product.Owner) {
		if !s.notifier.SendProductRemoved(ctx, product.Owner, product) {
			s.logger.WarnContext(ctx, "product removal notice not delivered",
				slog.String("product_id", product.ID),
				slog.String("owner", product.Owner),
			)
		}
	}

	s.logger.InfoContext(ctx, "product deleted",
		slog.String("product_id", product.ID),
		slog.String("actor", actor.UserID),
	)
	return nil
}

// CheckAvailability looks up every line concurrently and reports whether its
// quantity can be sold right now. Unknown products are reported, not failed.
func (s *CatalogService) CheckAvailability(ctx context.Context, items []domain.LineItem) ([]Availability, error) {
	results := make([]Availability, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for idx := range items {
		g.Go(func() error {
			item := items[idx]
			res := Availability{ProductRef: item.ProductRef, Requested: item.Quantity}

			product, err := s.GetByID(ctx, item.ProductRef)
			switch {
			case errors.Is(err, domain.ErrProductNotFound):
			case err != nil:
				return fmt.Errorf("check availability of %s: %w", item.ProductRef, err)
			default:
				res.Known = true
				res.Stock = product.Stock
				res.Active = product.IsActive()
				res.Available = res.Active && product.HasStock(item.Quantity)
			}
			results[idx] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
