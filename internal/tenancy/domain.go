// Package tenancy owns tenant lookups and the orphan-user integrity auditor.
package tenancy

import (
	"errors"
	"time"
)

var (
	// ErrUnknownUser indicates the user id does not exist in the directory.
	ErrUnknownUser = errors.New("tenancy: unknown user")
	// ErrUnknownTenant indicates the tenant id does not exist.
	ErrUnknownTenant = errors.New("tenancy: unknown tenant")
	// ErrEmptyReason indicates a tenant assignment without a justification.
	ErrEmptyReason = errors.New("tenancy: reason required")
)

// User is the slice of the directory record this engine reads. TenantID is
// nullable; a nil value is the integrity defect the auditor repairs.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TenantID  *string   `json:"tenantId"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Orphan reports whether the user lacks a tenant assignment.
func (u User) Orphan() bool {
	return u.TenantID == nil || *u.TenantID == ""
}

// Tenant is one school.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Assignment is one orphan repair instruction.
type Assignment struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	TenantID string `json:"tenantId" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}
