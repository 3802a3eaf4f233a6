package tenancy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/scholaris-access/internal/shared"
)

type mockRepo struct {
	mu      sync.Mutex
	users   map[int64]User
	tenants map[string]Tenant
}

func newMockRepo() *mockRepo {
	return &mockRepo{users: make(map[int64]User), tenants: make(map[string]Tenant)}
}

func (m *mockRepo) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

func (m *mockRepo) FindOrphans(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if u.Orphan() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockRepo) CountOrphans(ctx context.Context) (int64, error) {
	orphans, _ := m.FindOrphans(ctx)
	return int64(len(orphans)), nil
}

func (m *mockRepo) AssignTenant(ctx context.Context, userID int64, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[tenantID]; !ok {
		return ErrUnknownTenant
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrUnknownUser
	}
	u.TenantID = &tenantID
	m.users[userID] = u
	return nil
}

func (m *mockRepo) ListTenants(ctx context.Context) ([]Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Tenant
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func seedRepo() *mockRepo {
	repo := newMockRepo()
	repo.tenants["school-1"] = Tenant{ID: "school-1", Name: "Northside Primary"}
	tenant := "school-1"
	repo.users[1] = User{ID: 1, Role: "school-admin", TenantID: &tenant}
	repo.users[5] = User{ID: 5, Role: "teacher"} // orphan
	repo.users[6] = User{ID: 6, Role: "librarian"} // orphan
	return repo
}

func TestOrphanRepair(t *testing.T) {
	repo := seedRepo()
	svc := NewService(repo, nil, 2)
	ctx := context.Background()
	actor := shared.Actor{ID: 1, Role: "school-admin", SystemWide: true}

	orphans, err := svc.FindOrphans(ctx)
	require.NoError(t, err)
	ids := make(map[int64]bool)
	for _, u := range orphans {
		ids[u.ID] = true
	}
	assert.True(t, ids[5])
	assert.True(t, ids[6])

	require.NoError(t, svc.AssignTenant(ctx, actor, 5, "school-1", "data fix"))

	orphans, err = svc.FindOrphans(ctx)
	require.NoError(t, err)
	for _, u := range orphans {
		assert.NotEqual(t, int64(5), u.ID, "repaired user must leave the orphan set")
	}
}

func TestAssignTenantValidation(t *testing.T) {
	svc := NewService(seedRepo(), nil, 2)
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	err := svc.AssignTenant(ctx, actor, 5, "school-1", "   ")
	require.ErrorIs(t, err, ErrEmptyReason)

	err = svc.AssignTenant(ctx, actor, 5, "school-99", "fix")
	require.ErrorIs(t, err, ErrUnknownTenant)

	err = svc.AssignTenant(ctx, actor, 999, "school-1", "fix")
	require.ErrorIs(t, err, ErrUnknownUser)
}

func TestFixBatchIsolation(t *testing.T) {
	svc := NewService(seedRepo(), nil, 2)
	ctx := context.Background()
	actor := shared.Actor{ID: 1}

	result := svc.FixBatch(ctx, actor, []Assignment{
		{UserID: 5, TenantID: "school-1", Reason: "data fix"},
		{UserID: 999, TenantID: "school-1", Reason: "data fix"},
		{UserID: 6, TenantID: "school-1", Reason: "data fix"},
	})

	require.Len(t, result.Items, 3)
	assert.Equal(t, 1, result.Failed())

	byUser := make(map[int64]shared.ItemResult)
	for _, item := range result.Items {
		byUser[item.UserID] = item
	}
	assert.Equal(t, shared.OutcomeSuccess, byUser[5].Outcome)
	assert.Equal(t, shared.OutcomeSuccess, byUser[6].Outcome)
	assert.Equal(t, shared.OutcomeFailure, byUser[999].Outcome)
	assert.Contains(t, byUser[999].ErrorDetail, "unknown user")
}
