// Package grants stores per-user custom permission grants.
package grants

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scholaris/scholaris-access/internal/catalog"
)

var (
	// ErrEmptyReason indicates a grant or revoke without a justification.
	ErrEmptyReason = errors.New("grants: reason required")
	// ErrInvalidUser indicates a non-positive user id.
	ErrInvalidUser = errors.New("grants: invalid user id")
)

// Grant is one additive custom permission held by one user. At most one
// active (non-revoked, non-expired) grant exists per (user, resource, action);
// re-granting the same tuple supersedes the prior grant.
type Grant struct {
	ID        uuid.UUID        `json:"id"`
	UserID    int64            `json:"userId"`
	Resource  catalog.Resource `json:"resource"`
	Action    catalog.Action   `json:"action"`
	GrantedBy int64            `json:"grantedBy"`
	Reason    string           `json:"reason"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	RevokedAt *time.Time       `json:"revokedAt,omitempty"`
}

// Active reports whether the grant is in force at the given time. Expiry is
// passive: no write is required for an expired grant to stop counting.
func (g Grant) Active(at time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(at) {
		return false
	}
	return true
}
