package permset

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scholaris/scholaris-access/internal/catalog"
	"github.com/scholaris/scholaris-access/internal/platform/httpx"
	"github.com/scholaris/scholaris-access/internal/shared"
)

// Handler exposes permission-set administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers permission-set routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.define)
	r.Get("/{name}", h.resolve)
}

type defineRequest struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Pairs       []RawPair `json:"pairs" validate:"required,min=1,dive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sets, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list permission sets", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sets": sets})
}

func (h *Handler) define(w http.ResponseWriter, r *http.Request) {
	var req defineRequest
	if err := httpx.DecodeValid(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	set, err := h.service.Define(r.Context(), shared.ActorFromContext(r.Context()), req.Name, req.Description, req.Pairs)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, set)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.service.Resolve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrUnknownSet):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyName), errors.Is(err, ErrNoPairs):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, catalog.ErrInvalidResource):
		httpx.FieldProblem(w, "resource", err.Error())
	case errors.Is(err, catalog.ErrInvalidAction):
		httpx.FieldProblem(w, "action", err.Error())
	default:
		h.logger.Error("permission set request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
