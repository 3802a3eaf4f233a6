package tenancy

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scholaris/scholaris-access/internal/shared"
)

// RepositoryPort defines data access methods for the auditor.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
	FindOrphans(ctx context.Context) ([]User, error)
	CountOrphans(ctx context.Context) (int64, error)
	AssignTenant(ctx context.Context, userID int64, tenantID string) error
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// Service implements the tenant integrity auditor. It reads the user
// directory and writes tenant assignments; it never touches the grant store.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditSink
	concurrency int
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, audit shared.AuditSink, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{repo: repo, audit: audit, concurrency: concurrency}
}

// GetUser returns the directory record for one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// FindOrphans returns all users with no tenant assignment.
func (s *Service) FindOrphans(ctx context.Context) ([]User, error) {
	return s.repo.FindOrphans(ctx)
}

// CountOrphans returns the orphan population size.
func (s *Service) CountOrphans(ctx context.Context) (int64, error) {
	return s.repo.CountOrphans(ctx)
}

// ListTenants returns all tenants.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	return s.repo.ListTenants(ctx)
}

// AssignTenant repairs one orphan.
func (s *Service) AssignTenant(ctx context.Context, actor shared.Actor, userID int64, tenantID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrEmptyReason
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrUnknownTenant
	}
	if err := s.repo.AssignTenant(ctx, userID, tenantID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.Emit(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "tenant.assign",
			Entity:   "user",
			EntityID: strconv.FormatInt(userID, 10),
			Reason:   reason,
			Meta:     map[string]any{"tenantId": tenantID},
		})
	}
	return nil
}

// FixBatch applies tenant assignments with per-item isolation: one bad entry
// never aborts the rest, and the result covers every entry exactly once.
func (s *Service) FixBatch(ctx context.Context, actor shared.Actor, assignments []Assignment) shared.BulkResult {
	result := shared.BulkResult{
		OperationID: uuid.New(),
		Kind:        "tenancy.fix_batch",
		Items:       make([]shared.ItemResult, len(assignments)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, a := range assignments {
		if ctx.Err() != nil {
			result.Items[i] = shared.ItemResult{
				UserID:      a.UserID,
				Outcome:     shared.OutcomeFailure,
				ErrorDetail: "not dispatched: operation canceled",
			}
			continue
		}
		g.Go(func() error {
			item := shared.ItemResult{UserID: a.UserID, Outcome: shared.OutcomeSuccess}
			if err := s.AssignTenant(ctx, actor, a.UserID, a.TenantID, a.Reason); err != nil {
				item.Outcome = shared.OutcomeFailure
				item.ErrorDetail = err.Error()
			}
			mu.Lock()
			result.Items[i] = item
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}
