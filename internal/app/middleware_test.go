package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/scholaris-access/internal/shared"
	_ "github.com/scholaris/scholaris-access/internal/testing/guard"
)

func TestActorMiddlewareMaterializesHeaders(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "42")
	req.Header.Set(HeaderActorRole, "school-admin")
	req.Header.Set(HeaderActorTenant, "school-1")
	req.Header.Set(HeaderActorScope, "system")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, got.Valid())
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, "school-admin", got.Role)
	assert.Equal(t, "school-1", got.TenantID)
	assert.True(t, got.SystemWide)
}

func TestActorMiddlewareWithoutHeadersLeavesZeroActor(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.False(t, got.Valid())
}

func TestActorMiddlewareRejectsGarbageID(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "not-a-number")
	req.Header.Set(HeaderActorRole, "school-admin")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, got.Valid())
}

func TestActorMiddlewareScopeIsNotSystemByDefault(t *testing.T) {
	var got shared.Actor
	handler := ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "7")
	req.Header.Set(HeaderActorRole, "teacher")
	req.Header.Set(HeaderActorTenant, "school-2")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, got.Valid())
	assert.False(t, got.SystemWide)
}
