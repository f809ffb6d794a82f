package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/services/cart/internal/domain"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// identityFrom returns the caller identity set by middleware.Identity.
func identityFrom(r *http.Request) domain.Identity {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return domain.Identity{}
	}
	return domain.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
}

// expectedVersion reads the If-Match header. A missing header means any
// version is acceptable. Quoted and weak entity tags are accepted.
func expectedVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return domain.AnyVersion, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "If-Match must be a cart version"},
		})
		return 0, false
	}
	return v, true
}

func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
}
