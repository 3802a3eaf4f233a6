package grants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/shared"
)

type key struct {
	userID   int64
	resource catalog.Resource
	action   catalog.Action
}

// memStore mirrors the repository contract, including the upsert-supersede
// and passive-expiry predicates.
type memStore struct {
	grants map[key]Grant
}

func newMemStore() *memStore {
	return &memStore{grants: make(map[key]Grant)}
}

func (m *memStore) Upsert(ctx context.Context, g Grant) (Grant, error) {
	g.CreatedAt = time.Now()
	g.RevokedAt = nil
	m.grants[key{g.UserID, g.Resource, g.Action}] = g
	return g, nil
}

func (m *memStore) Revoke(ctx context.Context, userID int64, resource catalog.Resource, action catalog.Action) (bool, error) {
	k := key{userID, resource, action}
	g, ok := m.grants[k]
	if !ok || g.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	g.RevokedAt = &now
	m.grants[k] = g
	return true, nil
}

func (m *memStore) ActiveGrantsFor(ctx context.Context, userID int64, at time.Time) ([]catalog.Pair, error) {
	var pairs []catalog.Pair
	for k, g := range m.grants {
		if k.userID == userID && g.Active(at) {
			pairs = append(pairs, catalog.Pair{Resource: g.Resource, Action: g.Action})
		}
	}
	return pairs, nil
}

func (m *memStore) ActiveGrantDetails(ctx context.Context, userID int64, at time.Time) ([]Grant, error) {
	var out []Grant
	for k, g := range m.grants {
		if k.userID == userID && g.Active(at) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) ListForUser(ctx context.Context, userID int64) ([]Grant, error) {
	var out []Grant
	for k, g := range m.grants {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for k, g := range m.grants {
		if g.ExpiresAt != nil && g.ExpiresAt.Before(cutoff) {
			delete(m.grants, k)
			n++
		}
	}
	return n, nil
}

type captureSink struct {
	entries []shared.AuditLog
}

func (c *captureSink) Emit(ctx context.Context, entry shared.AuditLog) {
	c.entries = append(c.entries, entry)
}

func TestGrantValidation(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil, nil)
	ctx := context.Background()
	actor := shared.Actor{ID: 9, Role: "school-admin"}

	_, err := svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "LIBRARY", Action: "DELETE", Reason: "  "})
	require.ErrorIs(t, err, ErrEmptyReason)

	_, err = svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "GADGETS", Action: "DELETE", Reason: "coverage"})
	require.ErrorIs(t, err, catalog.ErrInvalidResource)

	_, err = svc.Grant(ctx, actor, GrantRequest{UserID: 0, Resource: "LIBRARY", Action: "DELETE", Reason: "coverage"})
	require.ErrorIs(t, err, ErrInvalidUser)
}

func TestGrantSupersedesPrior(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()
	actor := shared.Actor{ID: 9}

	soon := time.Now().Add(time.Hour)
	first, err := svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "LIBRARY", Action: "DELETE", Reason: "temporary coverage", ExpiresAt: &soon})
	require.NoError(t, err)

	second, err := svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "LIBRARY", Action: "DELETE", Reason: "extended coverage"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Never two simultaneously active grants for the tuple.
	details, err := svc.ActiveGrantDetails(ctx, 2, time.Now())
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "extended coverage", details[0].Reason)
	assert.Nil(t, details[0].ExpiresAt)
}

func TestPassiveExpiry(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()
	now := time.Now()
	expiry := now.Add(time.Hour)

	_, err := svc.Grant(ctx, shared.Actor{ID: 9}, GrantRequest{
		UserID: 2, Resource: "LIBRARY", Action: "DELETE",
		Reason: "temporary coverage", ExpiresAt: &expiry,
	})
	require.NoError(t, err)

	held, err := svc.ActiveGrantsFor(ctx, 2, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, held, 1)

	// No revoke call: the grant simply stops counting at its expiry.
	held, err = svc.ActiveGrantsFor(ctx, 2, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, held)

	held, err = svc.ActiveGrantsFor(ctx, 2, expiry)
	require.NoError(t, err)
	assert.Empty(t, held, "boundary instant counts as expired")
}

func TestRevokeNoOpWhenAbsent(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(newMemStore(), sink, nil, nil)
	ctx := context.Background()

	changed, err := svc.Revoke(ctx, shared.Actor{ID: 9}, 2, "LIBRARY", "DELETE")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, sink.entries, "no audit event for a no-op revoke")
}

func TestRevokeEmitsAudit(t *testing.T) {
	sink := &captureSink{}
	svc := NewService(newMemStore(), sink, nil, nil)
	ctx := context.Background()
	actor := shared.Actor{ID: 9}

	_, err := svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "LIBRARY", Action: "DELETE", Reason: "coverage"})
	require.NoError(t, err)

	changed, err := svc.Revoke(ctx, actor, 2, "LIBRARY", "DELETE")
	require.NoError(t, err)
	assert.True(t, changed)

	require.Len(t, sink.entries, 2)
	assert.Equal(t, "grant.create", sink.entries[0].Action)
	assert.Equal(t, "grant.revoke", sink.entries[1].Action)
}

func TestSweepExpired(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()
	actor := shared.Actor{ID: 9}

	past := time.Now().Add(-48 * time.Hour)
	_, err := svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "LIBRARY", Action: "DELETE", Reason: "old", ExpiresAt: &past})
	require.NoError(t, err)
	_, err = svc.Grant(ctx, actor, GrantRequest{UserID: 2, Resource: "STUDENTS", Action: "VIEW", Reason: "keep"})
	require.NoError(t, err)

	removed, err := svc.SweepExpired(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	left, err := svc.ListForUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}
