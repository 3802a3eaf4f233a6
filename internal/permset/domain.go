// Package permset manages named, reusable bundles of permission pairs.
package permset

import (
	"errors"
	"time"

	"github.com/scholaris/scholaris-access/internal/catalog"
)

var (
	// ErrDuplicateName indicates a set with the same name already exists.
	ErrDuplicateName = errors.New("permset: duplicate set name")
	// ErrUnknownSet indicates the named set does not exist.
	ErrUnknownSet = errors.New("permset: unknown set name")
	// ErrEmptyName indicates a missing set name.
	ErrEmptyName = errors.New("permset: name required")
	// ErrNoPairs indicates a set defined without any pairs.
	ErrNoPairs = errors.New("permset: at least one pair required")
)

// PermissionSet is a named template of (resource, action) pairs. Assignment
// copies the pairs by value; later edits never touch already-issued grants.
type PermissionSet struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Pairs       []catalog.Pair `json:"pairs"`
	CreatedAt   time.Time      `json:"createdAt"`
}
