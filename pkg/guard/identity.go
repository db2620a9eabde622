// Package guard resolves the caller identity forwarded by the edge proxy and
// decides access and ownership before any backend call is made.
//
// The guard never performs I/O: identities arrive as trusted request headers
// set by the authenticating edge and travel in the request context.
package guard

import (
	"context"
	"fmt"
	"strings"
)

// Role is the marketplace role of a caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleSeller   Role = "seller"
	RoleGuest    Role = "guest"
)

// ParseRole parses a role name. Unknown values are rejected.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleOperator, RoleSeller, RoleGuest:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is the authenticated caller.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`

	// VendorID is the seller's store id, if any.
	VendorID string `json:"vendor_id,omitempty"`
}

// IsAdmin reports whether the identity has the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// HasRole reports whether the identity has one of roles.
func (id Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// ResolveIdentity returns the identity stored in ctx.
func ResolveIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.ID == "" {
		return Identity{}, false
	}
	return id, true
}
