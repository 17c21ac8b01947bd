// Package handler exposes the service layer over HTTP. Handlers decode
// requests, delegate to services, and translate domain errors to status
// codes; no business rules live here.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/botarena/apiserver/internal/apperror"
)

// ErrorResponse is the error body shared by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// MessageResponse wraps the human-readable outcome of a write operation.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out; nothing to do but log.
		slog.Error("encoding JSON response", slog.String("error", err.Error()))
	}
}

// writeError maps a domain error onto a status code. Anything that is not an
// apperror sentinel is a 500 with the detail kept out of the body.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	field := ""
	if errors.As(err, &appErr) {
		field = appErr.Field
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "validation_error", Message: err.Error(), Field: field,
		})
	case errors.Is(err, apperror.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "unauthorized", Message: err.Error(),
		})
	case errors.Is(err, apperror.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{
			Error: "forbidden", Message: err.Error(),
		})
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "not_found", Message: err.Error(),
		})
	case errors.Is(err, apperror.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "conflict", Message: err.Error(),
		})
	default:
		slog.Error("internal error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "internal_error", Message: "An internal error occurred.",
		})
	}
}
