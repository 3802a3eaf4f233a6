package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/scholaris/scholaris-access/internal/bulk"
	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/observability"
	"github.com/scholaris/scholaris-access/internal/permset"
	"github.com/scholaris/scholaris-access/internal/resolver"
	"github.com/scholaris/scholaris-access/internal/tenancy"
	"github.com/scholaris/scholaris-access/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CatalogHandler  *catalog.Handler
	PermSetHandler  *permset.Handler
	ResolverHandler *resolver.Handler
	TenancyHandler  *tenancy.Handler
	BulkHandler     *bulk.Handler
	JobHandler      *jobs.Handler
	Guard           resolver.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router for the access service.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		// Caller-facing checks: any authenticated actor may inspect its own
		// permissions; no guard beyond the actor headers.
		if params.ResolverHandler != nil {
			r.Route("/permissions", params.ResolverHandler.MountRoutes)
		}

		r.Route("/admin", func(r chi.Router) {
			if params.CatalogHandler != nil {
				r.Route("/permissions", func(r chi.Router) {
					r.Use(params.Guard.Require(catalog.ResourcePermissions, catalog.ActionUpdate))
					params.CatalogHandler.MountRoutes(r)
				})
			}
			if params.PermSetHandler != nil {
				r.Route("/permission-sets", func(r chi.Router) {
					r.Use(params.Guard.Require(catalog.ResourcePermissions, catalog.ActionUpdate))
					params.PermSetHandler.MountRoutes(r)
				})
			}
			if params.BulkHandler != nil {
				r.Route("/bulk", func(r chi.Router) {
					r.Use(params.Guard.Require(catalog.ResourcePermissions, catalog.ActionUpdate))
					params.BulkHandler.MountRoutes(r)
				})
			}
			if params.TenancyHandler != nil {
				r.Route("/tenancy", func(r chi.Router) {
					r.Use(params.Guard.Require(catalog.ResourceUsers, catalog.ActionUpdate))
					params.TenancyHandler.MountRoutes(r)
				})
			}
			if params.ResolverHandler != nil {
				r.Group(func(r chi.Router) {
					r.Use(params.Guard.Require(catalog.ResourcePermissions, catalog.ActionView))
					params.ResolverHandler.MountAdminRoutes(r)
				})
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.Guard.Require(catalog.ResourcePermissions, catalog.ActionUpdate))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}
