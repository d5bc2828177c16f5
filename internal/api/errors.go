package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/capture-core/internal/capture"
	"github.com/nerrad567/capture-core/internal/media"
	"github.com/nerrad567/capture-core/internal/permission"
	"github.com/nerrad567/capture-core/internal/prompt"
	"github.com/nerrad567/capture-core/internal/salt"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeTimeout      = "timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps the sentinels of the capture packages to a
// response. Unknown errors are logged by the caller and reported as 500.
func writeDomainError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, capture.ErrInvalidRequest),
		errors.Is(err, media.ErrInvalidSurfaceID),
		errors.Is(err, permission.ErrUnknownKind),
		errors.Is(err, permission.ErrUnknownStatus):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, salt.ErrOpaqueOrigin),
		errors.Is(err, permission.ErrOpaqueOrigin):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, capture.ErrNotFound),
		errors.Is(err, prompt.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, prompt.ErrDeviceNotOffered):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, capture.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		return false
	}
	return true
}
