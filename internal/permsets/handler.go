package permsets

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
	List(ctx context.Context) ([]PermissionSet, error)
	Get(ctx context.Context, id int64) (PermissionSet, error)
	Create(ctx context.Context, p CreatePermissionSetParams) (PermissionSet, error)
	Update(ctx context.Context, p UpdatePermissionSetParams) (PermissionSet, error)
	Delete(ctx context.Context, name string) (int64, error)
	UpsertField(ctx context.Context, in UpsertFieldInput) (FieldGrant, error)
	ListFields(ctx context.Context, setID int64) ([]FieldGrant, error)
	UpdateField(ctx context.Context, setID, fieldAccessID int64, canView, canEdit bool) (FieldGrant, error)
	DeleteField(ctx context.Context, setID, fieldAccessID int64) error
	ResetGrants(ctx context.Context, setID int64) (ResetResult, error)
}

// Handler wires the permission-set admin endpoints.
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

// MountRoutes registers permission-set routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/update", h.update)
	r.Delete("/delete", h.delete)
	r.Route("/{id}/fields", func(r chi.Router) {
		r.Get("/", h.listFields)
		r.Post("/", h.upsertField)
		r.Put("/", h.updateField)
		r.Delete("/", h.deleteField)
	})
	r.Delete("/{id}/profiles", h.resetGrants)
}

type createPermissionSetRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type updatePermissionSetRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type deletePermissionSetRequest struct {
	Name string `json:"name" validate:"required"`
}

type upsertFieldRequest struct {
	TableName string `json:"table_name" validate:"required,min=1,max=128"`
	FieldName string `json:"field_name" validate:"required,min=1,max=128"`
	CanView   bool   `json:"can_view"`
	CanEdit   bool   `json:"can_edit"`
}

type updateFieldRequest struct {
	ID      int64 `json:"id" validate:"required,gt=0"`
	CanView bool  `json:"can_view"`
	CanEdit bool  `json:"can_edit"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sets, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, "list permission sets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sets)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	set, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get permission set", err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPermissionSetRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	set, err := h.service.Create(r.Context(), CreatePermissionSetParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, "create permission set", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, set)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updatePermissionSetRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	set, err := h.service.Update(r.Context(), UpdatePermissionSetParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, "update permission set", err)
		return
	}
	httpx.JSON(w, http.StatusOK, set)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req deletePermissionSetRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	deletedID, err := h.service.Delete(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, "delete permission set", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted_id": deletedID})
}

func (h *Handler) listFields(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.service.ListFields(r.Context(), id)
	if err != nil {
		h.respondError(w, "list field access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}

func (h *Handler) upsertField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req upsertFieldRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	grant, err := h.service.UpsertField(r.Context(), UpsertFieldInput{
		PermissionSetID: id,
		TableName:       req.TableName,
		FieldName:       req.FieldName,
		CanView:         req.CanView,
		CanEdit:         req.CanEdit,
	})
	if err != nil {
		h.respondError(w, "upsert field access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

func (h *Handler) updateField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateFieldRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	grant, err := h.service.UpdateField(r.Context(), id, req.ID, req.CanView, req.CanEdit)
	if err != nil {
		h.respondError(w, "update field access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

func (h *Handler) deleteField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	fieldID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || fieldID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: id must be a positive integer", shared.ErrValidation))
		return
	}
	if err := h.service.DeleteField(r.Context(), id, fieldID); err != nil {
		h.respondError(w, "delete field access", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "deleted_id": fieldID})
}

func (h *Handler) resetGrants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.ResetGrants(r.Context(), id)
	if err != nil {
		h.respondError(w, "reset permission set grants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"profiles_removed": result.ProfilesRemoved,
		"tables_removed":   result.TablesRemoved,
		"fields_removed":   result.FieldsRemoved,
	})
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
