package domain

import "time"

// Product status values.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// OwnerAdmin owns house listings created by administrators.
const OwnerAdmin = "admin"

// Sort orders accepted by ProductFilter.Sort.
const (
	SortPriceAsc  = "asc"
	SortPriceDesc = "desc"
)

// Product is a catalog listing. Price is in minor currency units.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	Owner       string    `json:"owner"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive reports whether the product can be added to carts.
func (p *Product) IsActive() bool {
	return p.Status == ProductStatusActive
}

// HasStock reports whether quantity units can be sold.
func (p *Product) HasStock(quantity int) bool {
	return quantity <= p.Stock
}

// ProductFilter narrows a catalog listing.
type ProductFilter struct {
	Category  string
	Available *bool
	Query     string
	Sort      string
}
