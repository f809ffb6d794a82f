package domain

import "strings"

// Caller roles.
const (
	RoleUser    = "user"
	RolePremium = "premium"
	RoleAdmin   = "admin"
)

// Identity is the authenticated caller acting on a cart or listing.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the caller is an administrator.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Owns reports whether owner names the caller, by email or user id.
func (i Identity) Owns(owner string) bool {
	if owner == "" {
		return false
	}
	if i.Email != "" && strings.EqualFold(owner, i.Email) {
		return true
	}
	return i.UserID != "" && owner == i.UserID
}

// CanManage reports whether the caller may modify a listing owned by owner.
func (i Identity) CanManage(owner string) bool {
	return i.IsAdmin() || i.Owns(owner)
}
