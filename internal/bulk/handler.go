package bulk

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/grants"
	"github.com/scholaris/scholaris-access/internal/permset"
	"github.com/scholaris/scholaris-access/internal/platform/httpx"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// Handler exposes the bulk mutation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers bulk routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/assign", h.assign)
	r.Post("/assign-set", h.assignSet)
	r.Post("/copy", h.copy)
	r.Post("/revoke", h.revoke)
}

type assignRequest struct {
	UserIDs     []int64           `json:"userIds" validate:"required,min=1,dive,gt=0"`
	Permissions []ResourceActions `json:"permissions" validate:"required,min=1,dive"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
	Reason      string            `json:"reason" validate:"required"`
}

type assignSetRequest struct {
	UserIDs   []int64    `json:"userIds" validate:"required,min=1,dive,gt=0"`
	SetName   string     `json:"setName" validate:"required"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Reason    string     `json:"reason" validate:"required"`
}

type copyRequest struct {
	SourceUserID      int64   `json:"sourceUserId" validate:"required,gt=0"`
	TargetUserIDs     []int64 `json:"targetUserIds" validate:"required,min=1,dive,gt=0"`
	IncludeExpiration bool    `json:"includeExpiration"`
	Reason            string  `json:"reason" validate:"required"`
}

type revokeRequest struct {
	UserID      int64             `json:"userId" validate:"required,gt=0"`
	Permissions []ResourceActions `json:"permissions" validate:"required,min=1,dive"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.BulkAssign(r.Context(), shared.ActorFromContext(r.Context()), req.UserIDs, req.Permissions, req.ExpiresAt, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) assignSet(w http.ResponseWriter, r *http.Request) {
	var req assignSetRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.AssignPermissionSet(r.Context(), shared.ActorFromContext(r.Context()), req.UserIDs, req.SetName, req.ExpiresAt, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) copy(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CopyPermissions(r.Context(), shared.ActorFromContext(r.Context()), req.SourceUserID, req.TargetUserIDs, req.IncludeExpiration, req.Reason)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.RevokeAll(r.Context(), shared.ActorFromContext(r.Context()), req.UserID, req.Permissions)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, permset.ErrUnknownSet):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoTargets), errors.Is(err, ErrNoPermissions),
		errors.Is(err, grants.ErrEmptyReason),
		errors.Is(err, catalog.ErrInvalidResource), errors.Is(err, catalog.ErrInvalidAction):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("bulk request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
