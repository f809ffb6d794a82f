package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// TokenClaims is the JWT payload accepted by BearerIdentity.
type TokenClaims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// BearerIdentity is the token-verifying counterpart of Identity for
// deployments without a gateway in front. It validates an HMAC-signed JWT
// from the Authorization header and builds Claims from it, using "sub" when
// "user_id" is absent. Identity headers on the request are ignored.
func BearerIdentity(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg(),
	}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			var tc TokenClaims
			_, err := parser.ParseWithClaims(strings.TrimSpace(raw), &tc, func(*jwt.Token) (any, error) {
				return key, nil
			})
			if err != nil {
				log.WarnContext(r.Context(), "invalid bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			userID := tc.UserID
			if userID == "" {
				userID = tc.Subject
			}
			if userID == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}

			claims := &Claims{
				UserID: userID,
				Email:  strings.ToLower(strings.TrimSpace(tc.Email)),
				Role:   normalizeRole(tc.Role),
			}
			ctx := WithClaims(r.Context(), claims)
			ctx = logger.WithUserID(ctx, claims.UserID)
			ctx = logger.WithRole(ctx, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
