package catalog

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scholaris/scholaris-access/internal/platform/httpx"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// Handler exposes catalog administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listActive)
	r.Post("/", h.upsert)
	r.Post("/deactivate", h.deactivate)
}

type upsertRequest struct {
	Resource     string   `json:"resource" validate:"required"`
	Action       string   `json:"action" validate:"required"`
	AllowedRoles []string `json:"allowedRoles"`
	IsActive     bool     `json:"isActive"`
}

type deactivateRequest struct {
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.Error("list catalog", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := h.service.Upsert(r.Context(), shared.ActorFromContext(r.Context()), req.Resource, req.Action, req.AllowedRoles, req.IsActive)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Deactivate(r.Context(), shared.ActorFromContext(r.Context()), req.Resource, req.Action); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidResource):
		httpx.FieldProblem(w, "resource", err.Error())
	case errors.Is(err, ErrInvalidAction):
		httpx.FieldProblem(w, "action", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
