package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/shared"
	"github.com/scholaris/scholaris-access/internal/tenancy"
)

type failingCatalog struct{}

func (failingCatalog) DefaultsForRole(ctx context.Context, role string) ([]catalog.Pair, error) {
	return nil, errors.New("catalog offline")
}

func performGuarded(guard Middleware, resource catalog.Resource, action catalog.Action, actor shared.Actor) (*httptest.ResponseRecorder, bool) {
	var reached bool
	handler := guard.Require(resource, action)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor.Valid() {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestRequireAllowsPermittedActor(t *testing.T) {
	svc, _, _ := fixtureService()
	guard := Middleware{Service: svc}

	rec, reached := performGuarded(guard, catalog.ResourceFeeCategories, catalog.ActionCreate,
		shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}

func TestRequireDeniesActorWithoutPermission(t *testing.T) {
	svc, _, _ := fixtureService()
	guard := Middleware{Service: svc}

	rec, reached := performGuarded(guard, catalog.ResourceFeeCategories, catalog.ActionCreate,
		shared.Actor{ID: 2, Role: "librarian", TenantID: "school-1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached, "handler must not run for a denied actor")
}

func TestRequireDeniesMissingActor(t *testing.T) {
	svc, _, _ := fixtureService()
	guard := Middleware{Service: svc}

	rec, reached := performGuarded(guard, catalog.ResourceFeeCategories, catalog.ActionCreate, shared.Actor{})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)
}

func TestRequireDeniesUnknownUser(t *testing.T) {
	svc, _, _ := fixtureService()
	guard := Middleware{Service: svc}

	rec, reached := performGuarded(guard, catalog.ResourceFeeCategories, catalog.ActionCreate,
		shared.Actor{ID: 404, Role: "school-admin", TenantID: "school-1"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached, "unknown user degrades to deny, not to an error")
}

func TestRequireFailsClosedOnResolverError(t *testing.T) {
	tenant := "school-1"
	dir := &stubDirectory{users: map[int64]tenancy.User{
		1: {ID: 1, Role: "school-admin", TenantID: &tenant},
	}}
	svc := NewService(failingCatalog{}, &stubGrants{grants: map[int64][]grants.Grant{}}, dir, nil, nil)
	guard := Middleware{Service: svc, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	rec, reached := performGuarded(guard, catalog.ResourceFeeCategories, catalog.ActionCreate,
		shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, reached)
}
