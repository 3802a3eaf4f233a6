package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/platform/httpx"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// GrantHistory exposes the per-user grant provenance listing for audit views.
type GrantHistory interface {
	ListForUser(ctx context.Context, userID int64) ([]grants.Grant, error)
}

// Handler exposes the read-only permission surface.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	history   GrantHistory
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, history GrantHistory) *Handler {
	return &Handler{logger: logger, service: service, history: history, validator: validator.New()}
}

// MountRoutes registers the caller-facing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/effective", h.ownEffective)
	r.Post("/check", h.check)
}

// MountAdminRoutes registers inspection routes for administrators.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/users/{userID}/effective", h.userEffective)
	r.Get("/users/{userID}/grants", h.userGrants)
}

type checkRequest struct {
	UserID   int64  `json:"userId"`
	Resource string `json:"resource" validate:"required"`
	Action   string `json:"action" validate:"required"`
	TenantID string `json:"tenantId"`
}

func (h *Handler) ownEffective(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if !actor.Valid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing actor identity")
		return
	}
	report, err := h.service.EffectivePermissions(r.Context(), actor.ID, time.Now())
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if !actor.Valid() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing actor identity")
		return
	}
	var req checkRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	pair, err := catalog.ParsePair(req.Resource, req.Action)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = actor.ID
	}

	// Probing another user's permissions is itself a privileged read; only
	// system-wide actors and PERMISSIONS VIEW holders may override userId.
	if userID != actor.ID && !actor.SystemWide {
		can, err := h.service.IsAllowed(r.Context(), actor.ID, catalog.ResourcePermissions, catalog.ActionView, time.Now())
		if err != nil {
			h.logger.Error("permission check", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if !can {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "checking another user requires PERMISSIONS VIEW")
			return
		}
	}

	// Tenant scoping: non-system-wide callers may only act inside their own
	// tenant. Instance-level ownership stays with the resource itself.
	if req.TenantID != "" && !actor.SystemWide && req.TenantID != actor.TenantID {
		httpx.JSON(w, http.StatusOK, map[string]any{"allowed": false, "deniedBy": "tenant-scope"})
		return
	}

	allowed, err := h.service.IsAllowed(r.Context(), userID, pair.Resource, pair.Action, time.Now())
	if err != nil {
		h.logger.Error("permission check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}

func (h *Handler) userEffective(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	report, err := h.service.EffectivePermissions(r.Context(), userID, time.Now())
	if err != nil {
		h.logger.Error("effective permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) userGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	history, err := h.history.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("grant history", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": history})
}

func (h *Handler) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.FieldProblem(w, "userID", "must be a positive integer")
		return 0, false
	}
	return id, true
}
