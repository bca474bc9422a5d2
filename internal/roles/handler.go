package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stewardhq/steward/internal/platform/httpx"
	"github.com/stewardhq/steward/internal/shared"
)

// ServicePort defines the business contract consumed by the handler.
type ServicePort interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	Create(ctx context.Context, p CreateRoleParams) (Role, error)
	Update(ctx context.Context, p UpdateRoleParams) (Role, error)
	Delete(ctx context.Context, name string) (int64, error)
	AssignUser(ctx context.Context, userID string, roleID int64) error
	AssignPermissionSet(ctx context.Context, roleID, permissionSetID int64) error
	RemoveAllPermissionSets(ctx context.Context, roleID int64) (int64, error)
}

// Handler wires the role admin endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ServicePort
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service ServicePort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/update", h.update)
	r.Delete("/delete", h.delete)
	r.Post("/{id}/permission-sets", h.assignPermissionSet)
	r.Delete("/{id}/permission-sets", h.removePermissionSets)
	r.Post("/assign-user", h.assignUser)
}

type createRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
	Level       int    `json:"level" validate:"gte=0"`
	ParentID    *int64 `json:"parent_id"`
}

type updateRoleRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
	Level       int    `json:"level" validate:"gte=0"`
	ParentID    *int64 `json:"parent_id"`
}

type deleteRoleRequest struct {
	Name string `json:"name" validate:"required"`
}

type assignUserRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	RoleID int64  `json:"role_id" validate:"required,gt=0"`
}

type assignPermissionSetRequest struct {
	PermissionSetID int64 `json:"permission_set_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Create(r.Context(), CreateRoleParams{
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Update(r.Context(), UpdateRoleParams{
		Name:        req.Name,
		Description: req.Description,
		Level:       req.Level,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRoleRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	deletedID, err := h.service.Delete(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted_id": deletedID})
}

func (h *Handler) assignUser(w http.ResponseWriter, r *http.Request) {
	var req assignUserRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignUser(r.Context(), req.UserID, req.RoleID); err != nil {
		h.respondError(w, "assign user to role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) assignPermissionSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req assignPermissionSetRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignPermissionSet(r.Context(), id, req.PermissionSetID); err != nil {
		h.respondError(w, "assign permission set to role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) removePermissionSets(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.RemoveAllPermissionSets(r.Context(), id)
	if err != nil {
		h.respondError(w, "remove role permission sets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "removed": removed})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) &&
		!errors.Is(err, shared.ErrForbidden) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", shared.ErrValidation)
	}
	return id, nil
}
