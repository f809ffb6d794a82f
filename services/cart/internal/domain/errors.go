package domain

import "errors"

// Kinds of domain failure. Service errors wrap these so callers can tell them
// apart with errors.Is regardless of the HTTP mapping.
var (
	ErrCartNotFound     = errors.New("cart not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrLineItemNotFound = errors.New("line item not found")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrInvalidQuantity  = errors.New("invalid quantity")

	// ErrCartAlreadyPurchased means a ticket exists for the same cart version.
	ErrCartAlreadyPurchased = errors.New("cart already purchased at this version")
	// ErrTicketCodeTaken means a generated ticket code collided with a stored one.
	ErrTicketCodeTaken = errors.New("ticket code already taken")
)
