package domain

import (
	"fmt"
	"time"
)

// AnyVersion disables the caller-side version check of a cart mutation.
const AnyVersion int64 = -1

// Cart is a shopping cart. Each product appears at most once in Products.
type Cart struct {
	ID        string     `json:"id"`
	Products  []LineItem `json:"products"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LineItem is a product reference with a positive quantity.
type LineItem struct {
	ProductRef string `json:"product"`
	Quantity   int    `json:"quantity"`
}

// NewCart builds a cart from items, merging duplicates.
func NewCart(id string, items []LineItem, now time.Time) (*Cart, error) {
	products, err := NormalizeLineItems(items)
	if err != nil {
		return nil, err
	}
	return &Cart{
		ID:        id,
		Products:  products,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NormalizeLineItems merges line items that share a product reference,
// keeping first-seen order. It rejects empty references and non-positive
// quantities with ErrInvalidQuantity.
func NormalizeLineItems(items []LineItem) ([]LineItem, error) {
	out := make([]LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.ProductRef == "" {
			return nil, fmt.Errorf("%w: product reference is required", ErrInvalidQuantity)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be greater than 0", ErrInvalidQuantity, item.ProductRef)
		}
		if i, ok := index[item.ProductRef]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductRef] = len(out)
		out = append(out, item)
	}
	return out, nil
}

// FindLineItem returns the index of the line item for ref, or -1.
func (c *Cart) FindLineItem(ref string) int {
	for i := range c.Products {
		if c.Products[i].ProductRef == ref {
			return i
		}
	}
	return -1
}

// AddQuantity merges quantity into the line item for ref, appending a new
// line item when the cart does not hold ref yet.
func (c *Cart) AddQuantity(ref string, quantity int) {
	if i := c.FindLineItem(ref); i >= 0 {
		c.Products[i].Quantity += quantity
		return
	}
	c.Products = append(c.Products, LineItem{ProductRef: ref, Quantity: quantity})
}

// SetQuantity replaces the quantity of the line item for ref.
func (c *Cart) SetQuantity(ref string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidQuantity)
	}
	i := c.FindLineItem(ref)
	if i < 0 {
		return ErrLineItemNotFound
	}
	c.Products[i].Quantity = quantity
	return nil
}

// Remove drops the line item for ref and reports whether one was present.
func (c *Cart) Remove(ref string) bool {
	i := c.FindLineItem(ref)
	if i < 0 {
		return false
	}
	c.Products = append(c.Products[:i], c.Products[i+1:]...)
	return true
}

// RetainOnly returns the line items whose product reference is in refs,
// in cart order. References unknown to the cart are ignored.
func (c *Cart) RetainOnly(refs map[string]struct{}) []LineItem {
	kept := make([]LineItem, 0, len(refs))
	for _, item := range c.Products {
		if _, ok := refs[item.ProductRef]; ok {
			kept = append(kept, item)
		}
	}
	return kept
}

// ItemCount returns the total quantity across all line items.
func (c *Cart) ItemCount() int {
	var n int
	for _, item := range c.Products {
		n += item.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no line items.
func (c *Cart) IsEmpty() bool {
	return len(c.Products) == 0
}

// Clone returns a deep copy of c.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Products = append([]LineItem(nil), c.Products...)
	if cp.Products == nil {
		cp.Products = []LineItem{}
	}
	return &cp
}

// Refs returns the product references of items as a set.
func Refs[T interface{ Ref() string }](items []T) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it.Ref()] = struct{}{}
	}
	return set
}

// Ref returns the product reference.
func (l LineItem) Ref() string { return l.ProductRef }
