package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stewardhq/steward/internal/platform/httpx"
	"github.com/stewardhq/steward/internal/shared"
)

// ServicePort defines the business contract consumed by the handler.
type ServicePort interface {
	CheckUsername(ctx context.Context, username, excludeUserID string) (Availability, error)
	CheckEmail(ctx context.Context, email, excludeUserID string) (Availability, error)
	ResetPassword(ctx context.Context, userID, password string, temporary bool) error
	SendForgotPassword(ctx context.Context, username string) error
}

// Handler wires the identity-provider delegation endpoints.
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

// MountRoutes registers user-account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check-username", h.checkUsername)
	r.Get("/check-email", h.checkEmail)
	r.Post("/reset-password", h.resetPassword)
	r.Post("/send-forgot-password", h.sendForgotPassword)
}

type resetPasswordRequest struct {
	UserID    string `json:"user_id" validate:"required,uuid4"`
	Password  string `json:"password" validate:"required,min=8"`
	Temporary bool   `json:"temporary"`
}

type forgotPasswordRequest struct {
	Username string `json:"username" validate:"required"`
}

func (h *Handler) checkUsername(w http.ResponseWriter, r *http.Request) {
	availability, err := h.service.CheckUsername(r.Context(), r.URL.Query().Get("username"), r.URL.Query().Get("excludeUserId"))
	if err != nil {
		h.respondError(w, "check username", err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability)
}

func (h *Handler) checkEmail(w http.ResponseWriter, r *http.Request) {
	availability, err := h.service.CheckEmail(r.Context(), r.URL.Query().Get("email"), r.URL.Query().Get("excludeUserId"))
	if err != nil {
		h.respondError(w, "check email", err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability)
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.UserID, req.Password, req.Temporary); err != nil {
		h.respondError(w, "reset password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) sendForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.DecodeValid(h.validator, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SendForgotPassword(r.Context(), req.Username); err != nil {
		h.respondError(w, "send forgot password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !errors.Is(err, shared.ErrValidation) && !errors.Is(err, shared.ErrNotFound) &&
		!errors.Is(err, shared.ErrForbidden) && !errors.Is(err, shared.ErrConflict) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
