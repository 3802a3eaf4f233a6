// Package bulk orchestrates multi-user grant mutations with per-user
// result isolation.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// ErrNoTargets indicates a bulk call without any target users.
var ErrNoTargets = errors.New("bulk: no target users")

// ErrNoPermissions indicates a bulk call without any permission pairs.
var ErrNoPermissions = errors.New("bulk: no permissions listed")

// GrantPort is the slice of the grant service the executor drives.
type GrantPort interface {
	Grant(ctx context.Context, actor shared.Actor, req grants.GrantRequest) (grants.Grant, error)
	Revoke(ctx context.Context, actor shared.Actor, userID int64, resource, action string) (bool, error)
	ActiveGrantDetails(ctx context.Context, userID int64, at time.Time) ([]grants.Grant, error)
}

// SetPort resolves permission-set templates.
type SetPort interface {
	Resolve(ctx context.Context, name string) ([]catalog.Pair, error)
}

// ResourceActions is the wire shape for one resource with several actions.
type ResourceActions struct {
	Resource string   `json:"resource" validate:"required"`
	Actions  []string `json:"actions" validate:"required,min=1"`
}

type rawPair struct {
	resource string
	action   string
}

// Service fans bulk mutations out across target users. Each user is
// processed independently under a bounded concurrency limit; one user's
// failure never aborts another's success. Within a user the default is
// best-effort: the entry fails only when every pair fails, matching the
// additive, non-transactional nature of grants.
type Service struct {
	grants GrantPort
	sets   SetPort
	limit  int
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds a Service instance.
func NewService(grantSvc GrantPort, sets SetPort, limit int, logger *slog.Logger) *Service {
	if limit <= 0 {
		limit = 8
	}
	return &Service{grants: grantSvc, sets: sets, limit: limit, logger: logger, clock: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// BulkAssign grants every (resource, action) expanded from perms to every
// target user.
func (s *Service) BulkAssign(ctx context.Context, actor shared.Actor, userIDs []int64, perms []ResourceActions, expiresAt *time.Time, reason string) (shared.BulkResult, error) {
	if len(userIDs) == 0 {
		return shared.BulkResult{}, ErrNoTargets
	}
	pairs := expand(perms)
	if len(pairs) == 0 {
		return shared.BulkResult{}, ErrNoPermissions
	}
	return s.assign(ctx, actor, "bulk.assign", userIDs, pairs, expiryFor(pairs, expiresAt), reason), nil
}

// AssignPermissionSet resolves setName once and applies its pairs uniformly
// to every target. An unknown set fails fast before any user is touched.
func (s *Service) AssignPermissionSet(ctx context.Context, actor shared.Actor, userIDs []int64, setName string, expiresAt *time.Time, reason string) (shared.BulkResult, error) {
	if len(userIDs) == 0 {
		return shared.BulkResult{}, ErrNoTargets
	}
	resolved, err := s.sets.Resolve(ctx, setName)
	if err != nil {
		return shared.BulkResult{}, err
	}
	pairs := make([]rawPair, len(resolved))
	expiries := make([]*time.Time, len(resolved))
	for i, p := range resolved {
		pairs[i] = rawPair{resource: string(p.Resource), action: string(p.Action)}
		expiries[i] = expiresAt
	}
	return s.assign(ctx, actor, "bulk.assign_set", userIDs, pairs, expiries, reason), nil
}

// CopyPermissions reads the source user's active grants and grants each pair
// to every target. With includeExpiration false the copies never expire — a
// deliberate one-way weakening of temporal scope, never a strengthening.
func (s *Service) CopyPermissions(ctx context.Context, actor shared.Actor, sourceUserID int64, targetUserIDs []int64, includeExpiration bool, reason string) (shared.BulkResult, error) {
	if len(targetUserIDs) == 0 {
		return shared.BulkResult{}, ErrNoTargets
	}
	source, err := s.grants.ActiveGrantDetails(ctx, sourceUserID, s.clock())
	if err != nil {
		return shared.BulkResult{}, fmt.Errorf("bulk: read source grants: %w", err)
	}
	pairs := make([]rawPair, len(source))
	expiries := make([]*time.Time, len(source))
	for i, g := range source {
		pairs[i] = rawPair{resource: string(g.Resource), action: string(g.Action)}
		if includeExpiration {
			expiries[i] = g.ExpiresAt
		}
	}
	return s.assign(ctx, actor, "bulk.copy", targetUserIDs, pairs, expiries, reason), nil
}

// RevokeAll revokes each listed pair for a single user. Pairs the user never
// held are no-ops, not failures.
func (s *Service) RevokeAll(ctx context.Context, actor shared.Actor, userID int64, perms []ResourceActions) (shared.BulkResult, error) {
	pairs := expand(perms)
	if len(pairs) == 0 {
		return shared.BulkResult{}, ErrNoPermissions
	}
	result := shared.BulkResult{
		OperationID: uuid.New(),
		Kind:        "bulk.revoke",
		Items:       make([]shared.ItemResult, 1),
	}
	var failures []string
	succeeded := 0
	for _, pair := range pairs {
		if _, err := s.grants.Revoke(ctx, actor, userID, pair.resource, pair.action); err != nil {
			failures = append(failures, fmt.Sprintf("%s:%s: %v", pair.resource, pair.action, err))
			continue
		}
		succeeded++
	}
	result.Items[0] = itemFor(userID, succeeded, failures)
	return result, nil
}

// assign runs the shared per-user fan-out. expiries is parallel to pairs.
func (s *Service) assign(ctx context.Context, actor shared.Actor, kind string, userIDs []int64, pairs []rawPair, expiries []*time.Time, reason string) shared.BulkResult {
	result := shared.BulkResult{
		OperationID: uuid.New(),
		Kind:        kind,
		Items:       make([]shared.ItemResult, len(userIDs)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.limit)
	for i, userID := range userIDs {
		// Caller-requested abort: stop submitting, report the rest.
		if ctx.Err() != nil {
			result.Items[i] = shared.ItemResult{
				UserID:      userID,
				Outcome:     shared.OutcomeFailure,
				ErrorDetail: "not dispatched: operation canceled",
			}
			continue
		}
		g.Go(func() error {
			var failures []string
			succeeded := 0
			for j, pair := range pairs {
				_, err := s.grants.Grant(ctx, actor, grants.GrantRequest{
					UserID:    userID,
					Resource:  pair.resource,
					Action:    pair.action,
					Reason:    reason,
					ExpiresAt: expiries[j],
				})
				if err != nil {
					failures = append(failures, fmt.Sprintf("%s:%s: %v", pair.resource, pair.action, err))
					continue
				}
				succeeded++
			}
			item := itemFor(userID, succeeded, failures)
			mu.Lock()
			result.Items[i] = item
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if s.logger != nil && result.Failed() > 0 {
		s.logger.Warn("bulk operation finished with failures",
			slog.String("kind", kind),
			slog.String("operation_id", result.OperationID.String()),
			slog.Int("failed", result.Failed()),
			slog.Int("total", len(result.Items)))
	}
	return result
}

func itemFor(userID int64, succeeded int, failures []string) shared.ItemResult {
	item := shared.ItemResult{UserID: userID, Outcome: shared.OutcomeSuccess}
	if len(failures) > 0 {
		item.ErrorDetail = strings.Join(failures, "; ")
	}
	if succeeded == 0 && len(failures) > 0 {
		item.Outcome = shared.OutcomeFailure
	}
	return item
}

func expand(perms []ResourceActions) []rawPair {
	seen := make(map[rawPair]struct{})
	var pairs []rawPair
	for _, p := range perms {
		for _, action := range p.Actions {
			pair := rawPair{resource: strings.TrimSpace(p.Resource), action: strings.TrimSpace(action)}
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

func expiryFor(pairs []rawPair, expiresAt *time.Time) []*time.Time {
	expiries := make([]*time.Time, len(pairs))
	for i := range pairs {
		expiries[i] = expiresAt
	}
	return expiries
}
