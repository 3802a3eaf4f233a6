// Package resolver computes effective permissions from role defaults and
// custom grants.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/tenancy"
)

// CatalogPort supplies role-default pairs.
type CatalogPort interface {
	DefaultsForRole(ctx context.Context, role string) ([]catalog.Pair, error)
}

// GrantsPort supplies per-user custom grants.
type GrantsPort interface {
	ActiveGrantsFor(ctx context.Context, userID int64, at time.Time) ([]catalog.Pair, error)
	ActiveGrantDetails(ctx context.Context, userID int64, at time.Time) ([]grants.Grant, error)
}

// DirectoryPort looks up users in the directory.
type DirectoryPort interface {
	GetUser(ctx context.Context, id int64) (tenancy.User, error)
}

// DecisionCounter records allow/deny outcomes for metrics.
type DecisionCounter interface {
	IncDecision(allowed bool)
}

// Service is the effective-permission resolver: a stateless union of the
// catalog's role defaults and the user's unexpired grants. A custom grant
// only ever adds access; removing role-level access is a catalog edit.
type Service struct {
	catalog   CatalogPort
	grants    GrantsPort
	directory DirectoryPort
	cache     *Cache
	metrics   DecisionCounter
}

// NewService builds a Service instance. cache and metrics may be nil.
func NewService(cat CatalogPort, gr GrantsPort, dir DirectoryPort, cache *Cache, metrics DecisionCounter) *Service {
	return &Service{catalog: cat, grants: gr, directory: dir, cache: cache, metrics: metrics}
}

// IsAllowed reports whether the user may perform action on resource at the
// given time. An unknown user resolves to deny, never to an error, so guard
// wrappers degrade safely.
func (s *Service) IsAllowed(ctx context.Context, userID int64, resource catalog.Resource, action catalog.Action, at time.Time) (bool, error) {
	pairs, err := s.effectivePairs(ctx, userID, at)
	if err != nil {
		if errors.Is(err, tenancy.ErrUnknownUser) {
			s.count(false)
			return false, nil
		}
		return false, err
	}
	want := catalog.Pair{Resource: resource, Action: action}
	for _, p := range pairs {
		if p == want {
			s.count(true)
			return true, nil
		}
	}
	s.count(false)
	return false, nil
}

// ActionDetail is one effective action on a resource with its sources.
type ActionDetail struct {
	Action    catalog.Action `json:"action"`
	FromRole  bool           `json:"fromRole"`
	FromGrant bool           `json:"fromGrant"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
}

// Report is the full effective-permission view for one user. The grouping by
// resource is presentational only.
type Report struct {
	UserID      int64                              `json:"userId"`
	Role        string                             `json:"role"`
	GeneratedAt time.Time                          `json:"generatedAt"`
	Resources   map[catalog.Resource][]ActionDetail `json:"resources"`
}

// EffectivePermissions merges role defaults and active grants into a full
// report. An unknown user yields an empty report.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64, at time.Time) (Report, error) {
	report := Report{UserID: userID, GeneratedAt: at, Resources: map[catalog.Resource][]ActionDetail{}}

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, tenancy.ErrUnknownUser) {
			return report, nil
		}
		return Report{}, fmt.Errorf("resolver: lookup user %d: %w", userID, err)
	}
	report.Role = user.Role

	defaults, err := s.catalog.DefaultsForRole(ctx, user.Role)
	if err != nil {
		return Report{}, fmt.Errorf("resolver: role defaults: %w", err)
	}
	granted, err := s.grants.ActiveGrantDetails(ctx, userID, at)
	if err != nil {
		return Report{}, fmt.Errorf("resolver: active grants: %w", err)
	}

	details := map[catalog.Pair]*ActionDetail{}
	for _, pair := range defaults {
		details[pair] = &ActionDetail{Action: pair.Action, FromRole: true}
	}
	for _, g := range granted {
		pair := catalog.Pair{Resource: g.Resource, Action: g.Action}
		d, ok := details[pair]
		if !ok {
			d = &ActionDetail{Action: pair.Action}
			details[pair] = d
		}
		d.FromGrant = true
		d.ExpiresAt = g.ExpiresAt
	}

	for pair, d := range details {
		report.Resources[pair.Resource] = append(report.Resources[pair.Resource], *d)
	}
	for resource := range report.Resources {
		rs := report.Resources[resource]
		sort.Slice(rs, func(i, j int) bool { return rs[i].Action < rs[j].Action })
		report.Resources[resource] = rs
	}
	return report, nil
}

// effectivePairs computes (or fetches) the union set for one user.
func (s *Service) effectivePairs(ctx context.Context, userID int64, at time.Time) ([]catalog.Pair, error) {
	if pairs, ok := s.cache.Get(ctx, userID); ok {
		return pairs, nil
	}

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, tenancy.ErrUnknownUser) {
			return nil, err
		}
		return nil, fmt.Errorf("resolver: lookup user %d: %w", userID, err)
	}

	defaults, err := s.catalog.DefaultsForRole(ctx, user.Role)
	if err != nil {
		return nil, fmt.Errorf("resolver: role defaults: %w", err)
	}
	granted, err := s.grants.ActiveGrantDetails(ctx, userID, at)
	if err != nil {
		return nil, fmt.Errorf("resolver: active grants: %w", err)
	}

	seen := make(map[catalog.Pair]struct{}, len(defaults)+len(granted))
	pairs := make([]catalog.Pair, 0, len(defaults)+len(granted))
	for _, p := range defaults {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			pairs = append(pairs, p)
		}
	}
	var earliest *time.Time
	for _, g := range granted {
		p := catalog.Pair{Resource: g.Resource, Action: g.Action}
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			pairs = append(pairs, p)
		}
		if g.ExpiresAt != nil && (earliest == nil || g.ExpiresAt.Before(*earliest)) {
			earliest = g.ExpiresAt
		}
	}

	s.cache.Set(ctx, userID, pairs, at, earliest)
	return pairs, nil
}

func (s *Service) count(allowed bool) {
	if s.metrics != nil {
		s.metrics.IncDecision(allowed)
	}
}
