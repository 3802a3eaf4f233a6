package resolver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// Middleware wires permission checks in front of HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the request actor holds (resource, action). Requests
// without a valid actor are denied outright.
func (m Middleware) Require(resource catalog.Resource, action catalog.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if !actor.Valid() {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			allowed, err := m.Service.IsAllowed(r.Context(), actor.ID, resource, action, time.Now())
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("permission check failed",
						slog.Int64("actor_id", actor.ID),
						slog.String("resource", string(resource)),
						slog.String("action", string(action)),
						slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
