package guard

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// Headers set by the authenticating edge proxy.
const (
	HeaderUserID    = "X-Auth-User-Id"
	HeaderUserEmail = "X-Auth-User-Email"
	HeaderUserRole  = "X-Auth-User-Role"
	HeaderVendorID  = "X-Auth-Vendor-Id"
)

// IdentityFromHeaders builds an identity from the edge headers. A missing
// user id or an unknown role yields no identity.
func IdentityFromHeaders(h http.Header) (Identity, bool) {
	userID := strings.TrimSpace(h.Get(HeaderUserID))
	if userID == "" {
		return Identity{}, false
	}

	role, err := ParseRole(h.Get(HeaderUserRole))
	if err != nil {
		log.Debug().
			Str("component", "guard").
			Str("user_id", userID).
			Err(err).
			Msg("Ignoring identity with unknown role")
		return Identity{}, false
	}

	return Identity{
		ID:       userID,
		Email:    strings.TrimSpace(h.Get(HeaderUserEmail)),
		Role:     role,
		VendorID: strings.TrimSpace(h.Get(HeaderVendorID)),
	}, true
}

// Middleware stores the edge identity in the request context. Requests
// without a valid identity pass through unauthenticated; handlers decide.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFromHeaders(r.Header); ok {
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}
