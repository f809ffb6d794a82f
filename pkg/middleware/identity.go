package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// Identity headers set by the upstream gateway after authenticating the caller.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// Roles understood by RequireRole.
const (
	RoleUser    = "user"
	RolePremium = "premium"
	RoleAdmin   = "admin"
)

type contextKeyType string

const claimsKey contextKeyType = "claims"

// Claims describes the authenticated caller.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Identity reads the gateway identity headers into Claims. Requests without
// X-User-ID are rejected with 401. A missing or unknown role is treated as
// RoleUser.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
			})
			return
		}

		claims := &Claims{
			UserID: userID,
			Email:  strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserEmail))),
			Role:   normalizeRole(r.Header.Get(HeaderUserRole)),
		}

		ctx := WithClaims(r.Context(), claims)
		ctx = logger.WithUserID(ctx, claims.UserID)
		ctx = logger.WithRole(ctx, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func normalizeRole(raw string) string {
	switch role := strings.ToLower(strings.TrimSpace(raw)); role {
	case RoleAdmin, RolePremium:
		return role
	default:
		return RoleUser
	}
}

// RequireRole rejects callers whose role is not among roles with 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "insufficient permissions"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the caller's claims, or nil outside Identity.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext returns the caller's user ID, or "".
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext returns the caller's role, or "".
func RoleFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}
