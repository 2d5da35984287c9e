// Package httputil centralizes JSON envelope writing and domain error
// translation so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	derrors "trapper/pkg/domainerrors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the JSON error envelope returned by every endpoint.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteError translates a domain error into an HTTP response. Unknown errors
// become opaque 500s so internals never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	var de *derrors.Error
	if !errors.As(err, &de) {
		WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: string(derrors.CodeInternal)})
		return
	}
	WriteJSON(w, statusFor(de.Code), errorResponse{Error: string(de.Code), Message: de.Message})
}

func statusFor(code derrors.Code) int {
	switch code {
	case derrors.CodeValidation, derrors.CodeConfigInvalid:
		return http.StatusBadRequest
	case derrors.CodeNotFound:
		return http.StatusNotFound
	case derrors.CodeAlreadyResolved, derrors.CodeMergeCycle, derrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON request body into T, enforcing a sane size limit and
// rejecting unknown fields.
func Decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, derrors.Wrap(derrors.CodeValidation, "invalid request body", err)
	}
	return v, nil
}
