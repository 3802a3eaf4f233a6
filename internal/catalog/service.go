package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/scholaris/scholaris-access/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	ListActive(ctx context.Context) ([]Permission, error)
	DefaultsForRole(ctx context.Context, role string) ([]Pair, error)
	Upsert(ctx context.Context, p Permission) (Permission, error)
	Deactivate(ctx context.Context, resource Resource, action Action) error
}

// Invalidator drops cached resolver state after catalog changes. Catalog
// edits affect every holder of a role, so the whole cache is dropped.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Service orchestrates catalog operations.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditSink
	caches Invalidator
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit shared.AuditSink, caches Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, caches: caches, logger: logger}
}

// ListActive returns all active catalog entries.
func (s *Service) ListActive(ctx context.Context) ([]Permission, error) {
	return s.repo.ListActive(ctx)
}

// DefaultsForRole returns all active pairs whose allowed roles contain role.
func (s *Service) DefaultsForRole(ctx context.Context, role string) ([]Pair, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return nil, nil
	}
	return s.repo.DefaultsForRole(ctx, role)
}

// Upsert creates or replaces a catalog entry after enum validation.
func (s *Service) Upsert(ctx context.Context, actor shared.Actor, resource, action string, allowedRoles []string, isActive bool) (Permission, error) {
	pair, err := ParsePair(resource, action)
	if err != nil {
		return Permission{}, err
	}
	roles := normalizeRoles(allowedRoles)
	perm, err := s.repo.Upsert(ctx, Permission{
		Resource:     pair.Resource,
		Action:       pair.Action,
		AllowedRoles: roles,
		IsActive:     isActive,
	})
	if err != nil {
		return Permission{}, fmt.Errorf("catalog: upsert: %w", err)
	}
	s.emit(ctx, actor, "permission.upsert", pair, map[string]any{"allowedRoles": roles, "isActive": isActive})
	s.invalidate(ctx)
	return perm, nil
}

// Deactivate disables the role default for a tuple. Existing custom grants
// for the same tuple are untouched; the two sources stay independent unions.
func (s *Service) Deactivate(ctx context.Context, actor shared.Actor, resource, action string) error {
	pair, err := ParsePair(resource, action)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, pair.Resource, pair.Action); err != nil {
		return err
	}
	s.emit(ctx, actor, "permission.deactivate", pair, nil)
	s.invalidate(ctx)
	return nil
}

func (s *Service) emit(ctx context.Context, actor shared.Actor, action string, pair Pair, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "permission",
		EntityID: string(pair.Resource) + ":" + string(pair.Action),
		Meta:     meta,
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.caches == nil {
		return
	}
	if err := s.caches.InvalidateAll(ctx); err != nil && s.logger != nil {
		s.logger.Warn("catalog cache invalidation failed", slog.Any("error", err))
	}
}

func normalizeRoles(roles []string) []string {
	unique := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		unique[role] = struct{}{}
	}
	out := make([]string, 0, len(unique))
	for role := range unique {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
