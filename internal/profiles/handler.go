package profiles

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
	List(ctx context.Context) ([]Profile, error)
	Get(ctx context.Context, id int64) (Profile, error)
	Create(ctx context.Context, p CreateProfileParams) (Profile, error)
	Update(ctx context.Context, p UpdateProfileParams) (Profile, error)
	Delete(ctx context.Context, name string) (int64, error)
	AssignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error
	UnassignPermissionSet(ctx context.Context, profileID, permissionSetID int64) error
	AssignUser(ctx context.Context, userID string, profileID int64) (UserAssignment, error)
	RemoveAllUsers(ctx context.Context, profileID int64) (int64, error)
}

// Handler wires the profile admin endpoints.
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

// MountRoutes registers profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/update", h.update)
	r.Delete("/delete", h.delete)
	r.Post("/{id}/assign-permission-set", h.assignPermissionSet)
	r.Delete("/{id}/assign-permission-set", h.unassignPermissionSet)
	r.Delete("/{id}/users", h.removeUsers)
}

// MountUserRoutes registers the user-facing assignment route, mounted under
// /admin/users alongside the identity-provider endpoints.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Post("/assign-profile", h.assignUser)
}

type createProfileRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
	Type        string `json:"type" validate:"omitempty,oneof=System Standard"`
}

type updateProfileRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
	Type        string `json:"type" validate:"required,oneof=System Standard"`
}

type deleteProfileRequest struct {
	Name string `json:"name" validate:"required"`
}

type assignPermissionSetRequest struct {
	PermissionSetID int64 `json:"permission_set_id" validate:"required,gt=0"`
}

type assignProfileRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid4"`
	ProfileID int64  `json:"profile_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list profiles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profiles)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := h.service.Create(r.Context(), CreateProfileParams{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
	})
	if err != nil {
		h.respondError(w, "create profile", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, profile)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	profile, err := h.service.Update(r.Context(), UpdateProfileParams{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
	})
	if err != nil {
		h.respondError(w, "update profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteProfileRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	deletedID, err := h.service.Delete(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, "delete profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted_id": deletedID})
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
		h.respondError(w, "assign permission set", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) unassignPermissionSet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	permissionSetID, err := strconv.ParseInt(r.URL.Query().Get("permission_set_id"), 10, 64)
	if err != nil || permissionSetID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: permission_set_id must be a positive integer", shared.ErrValidation))
		return
	}
	if err := h.service.UnassignPermissionSet(r.Context(), id, permissionSetID); err != nil {
		h.respondError(w, "unassign permission set", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) assignUser(w http.ResponseWriter, r *http.Request) {
	var req assignProfileRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	assignment, err := h.service.AssignUser(r.Context(), req.UserID, req.ProfileID)
	if err != nil {
		h.respondError(w, "assign profile to user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignment)
}

func (h *Handler) removeUsers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	removed, err := h.service.RemoveAllUsers(r.Context(), id)
	if err != nil {
		h.respondError(w, "remove profile users", err)
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
