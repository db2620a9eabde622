package guard

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var guardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_guard_decisions_total",
	Help: "Guard decisions by check and result",
}, []string{"check", "result"})

// OwnershipDecision is the outcome of an ownership check.
type OwnershipDecision struct {
	IsOwner bool
	IsAdmin bool
}

// RequireIdentity returns the caller identity or an UNAUTHORIZED AuthError.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := ResolveIdentity(ctx)
	if !ok {
		guardDecisionsTotal.WithLabelValues("identity", "denied").Inc()
		return Identity{}, unauthorized("authentication required")
	}
	guardDecisionsTotal.WithLabelValues("identity", "allowed").Inc()
	return id, nil
}

// RequireRole returns the caller identity if its role is one of allowed.
func RequireRole(ctx context.Context, allowed ...Role) (Identity, error) {
	id, err := RequireIdentity(ctx)
	if err != nil {
		return Identity{}, err
	}

	if !id.HasRole(allowed...) {
		guardDecisionsTotal.WithLabelValues("role", "denied").Inc()
		log.Debug().
			Str("component", "guard").
			Str("user_id", id.ID).
			Str("role", string(id.Role)).
			Msg("Role not permitted")

		names := make([]string, len(allowed))
		for i, r := range allowed {
			names[i] = string(r)
		}
		return Identity{}, forbidden("role " + string(id.Role) + " is not one of " + strings.Join(names, ", "))
	}

	guardDecisionsTotal.WithLabelValues("role", "allowed").Inc()
	return id, nil
}

// CheckOwnership decides whether id owns a resource owned by ownerID.
// It is pure: the same inputs always give the same decision.
// An empty ownerID grants ownership to admins only.
func CheckOwnership(id Identity, ownerID string) OwnershipDecision {
	isAdmin := id.IsAdmin()
	return OwnershipDecision{
		IsAdmin: isAdmin,
		IsOwner: isAdmin || (ownerID != "" && id.ID == ownerID),
	}
}

// ValidateOwnership requires an identity that owns ownerID.
func ValidateOwnership(ctx context.Context, ownerID string) (OwnershipDecision, error) {
	id, err := RequireIdentity(ctx)
	if err != nil {
		return OwnershipDecision{}, err
	}

	decision := CheckOwnership(id, ownerID)
	if !decision.IsOwner {
		guardDecisionsTotal.WithLabelValues("ownership", "denied").Inc()
		log.Warn().
			Str("component", "guard").
			Str("user_id", id.ID).
			Str("owner_id", ownerID).
			Msg("Ownership check failed")
		return decision, forbidden("resource belongs to another account")
	}

	guardDecisionsTotal.WithLabelValues("ownership", "allowed").Inc()
	return decision, nil
}
