package tenancy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scholaris/scholaris-access/internal/platform/httpx"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// Handler exposes the integrity auditor endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers auditor routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tenants", h.listTenants)
	r.Get("/orphans", h.listOrphans)
	r.Post("/orphans/fix", h.fixBatch)
	r.Post("/assign", h.assign)
}

type assignRequest struct {
	UserID   int64  `json:"userId" validate:"required,gt=0"`
	TenantID string `json:"tenantId" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
}

type fixBatchRequest struct {
	Assignments []Assignment `json:"assignments" validate:"required,min=1,dive"`
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListTenants(r.Context())
	if err != nil {
		h.logger.Error("list tenants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (h *Handler) listOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.service.FindOrphans(r.Context())
	if err != nil {
		h.logger.Error("find orphans", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orphans": orphans, "count": len(orphans)})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	err := h.service.AssignTenant(r.Context(), shared.ActorFromContext(r.Context()), req.UserID, req.TenantID, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *Handler) fixBatch(w http.ResponseWriter, r *http.Request) {
	var req fixBatchRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result := h.service.FixBatch(r.Context(), shared.ActorFromContext(r.Context()), req.Assignments)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownUser):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownTenant):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyReason):
		httpx.FieldProblem(w, "reason", err.Error())
	default:
		h.logger.Error("tenancy request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
