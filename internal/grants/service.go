package grants

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// StorePort defines data access methods for user grants.
type StorePort interface {
	Upsert(ctx context.Context, g Grant) (Grant, error)
	Revoke(ctx context.Context, userID int64, resource catalog.Resource, action catalog.Action) (bool, error)
	ActiveGrantsFor(ctx context.Context, userID int64, at time.Time) ([]catalog.Pair, error)
	ActiveGrantDetails(ctx context.Context, userID int64, at time.Time) ([]Grant, error)
	ListForUser(ctx context.Context, userID int64) ([]Grant, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Invalidator drops the cached effective set of a single user.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Service validates and records grant mutations.
type Service struct {
	store  StorePort
	audit  shared.AuditSink
	caches Invalidator
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(store StorePort, audit shared.AuditSink, caches Invalidator, logger *slog.Logger) *Service {
	return &Service{store: store, audit: audit, caches: caches, logger: logger}
}

// GrantRequest carries one grant mutation. Resource and Action are raw
// strings so per-pair enum failures stay isolated in bulk operations.
type GrantRequest struct {
	UserID    int64
	Resource  string
	Action    string
	Reason    string
	ExpiresAt *time.Time
}

// Grant upserts a custom permission for one user.
func (s *Service) Grant(ctx context.Context, actor shared.Actor, req GrantRequest) (Grant, error) {
	if req.UserID <= 0 {
		return Grant{}, fmt.Errorf("%w: %d", ErrInvalidUser, req.UserID)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return Grant{}, ErrEmptyReason
	}
	pair, err := catalog.ParsePair(req.Resource, req.Action)
	if err != nil {
		return Grant{}, err
	}
	grant, err := s.store.Upsert(ctx, Grant{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Resource:  pair.Resource,
		Action:    pair.Action,
		GrantedBy: actor.ID,
		Reason:    reason,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return Grant{}, fmt.Errorf("grants: upsert: %w", err)
	}
	s.emit(ctx, actor, "grant.create", grant.UserID, pair, map[string]any{
		"grantId":   grant.ID.String(),
		"expiresAt": grant.ExpiresAt,
	}, reason)
	s.invalidate(ctx, grant.UserID)
	return grant, nil
}

// Revoke marks the matching active grant revoked. Returns false without
// error when the user never held the grant.
func (s *Service) Revoke(ctx context.Context, actor shared.Actor, userID int64, resource, action string) (bool, error) {
	if userID <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidUser, userID)
	}
	pair, err := catalog.ParsePair(resource, action)
	if err != nil {
		return false, err
	}
	changed, err := s.store.Revoke(ctx, userID, pair.Resource, pair.Action)
	if err != nil {
		return false, fmt.Errorf("grants: revoke: %w", err)
	}
	if changed {
		s.emit(ctx, actor, "grant.revoke", userID, pair, nil, "")
		s.invalidate(ctx, userID)
	}
	return changed, nil
}

// ActiveGrantsFor returns the pairs the user holds at the given time.
func (s *Service) ActiveGrantsFor(ctx context.Context, userID int64, at time.Time) ([]catalog.Pair, error) {
	return s.store.ActiveGrantsFor(ctx, userID, at)
}

// ActiveGrantDetails returns the user's active grants with provenance.
func (s *Service) ActiveGrantDetails(ctx context.Context, userID int64, at time.Time) ([]Grant, error) {
	return s.store.ActiveGrantDetails(ctx, userID, at)
}

// ListForUser returns the user's retained grant rows, latest per tuple.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Grant, error) {
	return s.store.ListForUser(ctx, userID)
}

// SweepExpired deletes grants that expired before the cutoff.
func (s *Service) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.DeleteExpiredBefore(ctx, cutoff)
}

func (s *Service) emit(ctx context.Context, actor shared.Actor, action string, userID int64, pair catalog.Pair, meta map[string]any, reason string) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["userId"] = userID
	s.audit.Emit(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "user_grant",
		EntityID: fmt.Sprintf("%d/%s:%s", userID, pair.Resource, pair.Action),
		Reason:   reason,
		Meta:     meta,
	})
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.caches == nil {
		return
	}
	if err := s.caches.InvalidateUser(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("grant cache invalidation failed",
			slog.Int64("user_id", userID), slog.Any("error", err))
	}
}
