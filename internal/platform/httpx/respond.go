// Package httpx provides JSON request/response utilities for the admin API.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stewardhq/steward/internal/shared"
)

// ErrorBody is the error envelope returned by every admin endpoint.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError maps domain errors onto the stable {error, details} envelope.
// Internal failures deliberately carry no details.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		JSON(w, http.StatusBadRequest, ErrorBody{Error: "validation_error", Details: err.Error()})
	case errors.Is(err, shared.ErrForbidden):
		JSON(w, http.StatusForbidden, ErrorBody{Error: "forbidden", Details: err.Error()})
	case errors.Is(err, shared.ErrNotFound):
		JSON(w, http.StatusNotFound, ErrorBody{Error: "not_found", Details: err.Error()})
	case errors.Is(err, shared.ErrConflict):
		JSON(w, http.StatusConflict, ErrorBody{Error: "conflict", Details: err.Error()})
	default:
		JSON(w, http.StatusInternalServerError, ErrorBody{Error: "upstream_failure"})
	}
}

// DecodeJSON decodes the request body into target, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: invalid JSON body", shared.ErrValidation)
	}
	return nil
}

// DecodeValid decodes the request body and validates the resulting struct.
func DecodeValid(v *validator.Validate, r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	if err := v.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			parts := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				parts = append(parts, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(parts, "; "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return nil
}
