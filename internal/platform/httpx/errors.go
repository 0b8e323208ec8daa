// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

// Sentinel errors for the transport layer.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, revrec.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, revrec.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, revrec.ErrConcurrency), errors.Is(err, revrec.ErrInconsistentState):
		return http.StatusConflict
	case errors.Is(err, revrec.ErrExternalIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807. Server
// side failures never echo the underlying error.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusBadRequest:
		Problem(w, status, "Validation Failed", err.Error())
	case http.StatusUnauthorized:
		Problem(w, status, "Unauthorized", err.Error())
	case http.StatusForbidden:
		Problem(w, status, "Forbidden", err.Error())
	case http.StatusNotFound:
		Problem(w, status, "Not Found", err.Error())
	case http.StatusConflict:
		if errors.Is(err, revrec.ErrConcurrency) {
			Problem(w, status, "Run In Progress", err.Error())
			return
		}
		Problem(w, status, "Inconsistent State", err.Error())
	case http.StatusServiceUnavailable:
		Problem(w, status, "Store Unavailable", "")
	default:
		Problem(w, status, "Internal Error", "")
	}
}
