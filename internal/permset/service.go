package permset

import (
	"context"
	"strings"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// RepositoryPort defines data access methods for permission sets.
type RepositoryPort interface {
	Define(ctx context.Context, set PermissionSet) (PermissionSet, error)
	Resolve(ctx context.Context, name string) ([]catalog.Pair, error)
	List(ctx context.Context) ([]PermissionSet, error)
}

// Service handles permission-set business logic.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditSink
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit shared.AuditSink) *Service {
	return &Service{repo: repo, audit: audit}
}

// RawPair is an unvalidated (resource, action) pair from the API surface.
type RawPair struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

// Define validates and stores a new named set.
func (s *Service) Define(ctx context.Context, actor shared.Actor, name, description string, rawPairs []RawPair) (PermissionSet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PermissionSet{}, ErrEmptyName
	}
	pairs, err := dedupePairs(rawPairs)
	if err != nil {
		return PermissionSet{}, err
	}
	if len(pairs) == 0 {
		return PermissionSet{}, ErrNoPairs
	}
	set, err := s.repo.Define(ctx, PermissionSet{
		Name:        name,
		Description: strings.TrimSpace(description),
		Pairs:       pairs,
	})
	if err != nil {
		return PermissionSet{}, err
	}
	if s.audit != nil {
		s.audit.Emit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "permission_set.define",
			Entity:   "permission_set",
			EntityID: set.Name,
			Meta:     map[string]any{"pairs": len(set.Pairs)},
		})
	}
	return set, nil
}

// Resolve returns a snapshot copy of the named set's pairs.
func (s *Service) Resolve(ctx context.Context, name string) ([]catalog.Pair, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrUnknownSet
	}
	return s.repo.Resolve(ctx, name)
}

// List returns all defined sets.
func (s *Service) List(ctx context.Context) ([]PermissionSet, error) {
	return s.repo.List(ctx)
}

func dedupePairs(raw []RawPair) ([]catalog.Pair, error) {
	seen := make(map[catalog.Pair]struct{}, len(raw))
	pairs := make([]catalog.Pair, 0, len(raw))
	for _, rp := range raw {
		pair, err := catalog.ParsePair(rp.Resource, rp.Action)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[pair]; ok {
			continue
		}
		seen[pair] = struct{}{}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}
