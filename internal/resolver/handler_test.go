package resolver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/shared"
	"github.com/scholaris/scholaris-access/internal/tenancy"
)

type stubHistory struct {
	grants []grants.Grant
}

func (s *stubHistory) ListForUser(ctx context.Context, userID int64) ([]grants.Grant, error) {
	return s.grants, nil
}

// fixtureHandler adds an auditor user holding the PERMISSIONS VIEW default on
// top of the admin and librarian from the service fixtures.
func fixtureHandler() *Handler {
	cat := &stubCatalog{defaults: map[string][]catalog.Pair{
		"school-admin": {
			{Resource: catalog.ResourceFeeCategories, Action: catalog.ActionCreate},
			{Resource: catalog.ResourceStudents, Action: catalog.ActionView},
		},
		"librarian": {
			{Resource: catalog.ResourceLibrary, Action: catalog.ActionView},
		},
		"auditor": {
			{Resource: catalog.ResourcePermissions, Action: catalog.ActionView},
		},
	}}
	gr := &stubGrants{grants: map[int64][]grants.Grant{}}
	tenant := "school-1"
	dir := &stubDirectory{users: map[int64]tenancy.User{
		1: {ID: 1, Role: "school-admin", TenantID: &tenant},
		2: {ID: 2, Role: "librarian", TenantID: &tenant},
		3: {ID: 3, Role: "auditor", TenantID: &tenant},
	}}
	svc := NewService(cat, gr, dir, nil, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, svc, &stubHistory{})
}

func performCheck(t *testing.T, h *Handler, actor shared.Actor, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/permissions", h.MountRoutes)

	req := httptest.NewRequest(http.MethodPost, "/permissions/check", strings.NewReader(body))
	req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCheckCrossTenantDenied(t *testing.T) {
	h := fixtureHandler()
	actor := shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1"}

	rec, body := performCheck(t, h, actor,
		`{"resource":"FEE_CATEGORIES","action":"CREATE","tenantId":"school-2"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "tenant-scope", body["deniedBy"], "denial must name the tenant boundary, not the permission")
}

func TestCheckSystemWideCrossesTenants(t *testing.T) {
	h := fixtureHandler()
	actor := shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1", SystemWide: true}

	rec, body := performCheck(t, h, actor,
		`{"resource":"FEE_CATEGORIES","action":"CREATE","tenantId":"school-2"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["allowed"])
	assert.NotContains(t, body, "deniedBy")
}

func TestCheckOwnTenantResolvesNormally(t *testing.T) {
	h := fixtureHandler()
	actor := shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1"}

	rec, body := performCheck(t, h, actor,
		`{"resource":"FEE_CATEGORIES","action":"CREATE","tenantId":"school-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["allowed"])

	rec, body = performCheck(t, h, actor,
		`{"resource":"LIBRARY","action":"DELETE","tenantId":"school-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["allowed"])
	assert.NotContains(t, body, "deniedBy")
}

func TestCheckUserOverrideRequiresPrivilege(t *testing.T) {
	h := fixtureHandler()
	librarian := shared.Actor{ID: 2, Role: "librarian", TenantID: "school-1"}

	rec, _ := performCheck(t, h, librarian,
		`{"userId":1,"resource":"STUDENTS","action":"VIEW"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "probing another user needs PERMISSIONS VIEW")

	// The same caller may still check itself explicitly.
	rec, body := performCheck(t, h, librarian,
		`{"userId":2,"resource":"LIBRARY","action":"VIEW"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["allowed"])
}

func TestCheckUserOverrideAllowedForAuditor(t *testing.T) {
	h := fixtureHandler()
	auditor := shared.Actor{ID: 3, Role: "auditor", TenantID: "school-1"}

	rec, body := performCheck(t, h, auditor,
		`{"userId":2,"resource":"LIBRARY","action":"VIEW"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["allowed"])
}

func TestCheckUserOverrideAllowedForSystemWide(t *testing.T) {
	h := fixtureHandler()
	root := shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1", SystemWide: true}

	rec, body := performCheck(t, h, root,
		`{"userId":2,"resource":"LIBRARY","action":"VIEW"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["allowed"])
}

func TestCheckMissingActorForbidden(t *testing.T) {
	h := fixtureHandler()

	rec, _ := performCheck(t, h, shared.Actor{},
		`{"resource":"FEE_CATEGORIES","action":"CREATE"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckInvalidPairRejected(t *testing.T) {
	h := fixtureHandler()
	actor := shared.Actor{ID: 1, Role: "school-admin", TenantID: "school-1"}

	rec, _ := performCheck(t, h, actor,
		`{"resource":"NOT_A_RESOURCE","action":"CREATE"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
