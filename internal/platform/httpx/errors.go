// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

// StatusOf maps a domain error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrDuplicate), errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch status := StatusOf(err); {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, status, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, status, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation):
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			writeProblem(w, ProblemDetail{
				Title:  "Validation Failed",
				Status: status,
				Detail: err.Error(),
				Errors: verr.Fields,
			})
			return
		}
		Problem(w, status, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, status, "Conflict", err.Error())
	default:
		Problem(w, status, "Internal Error", "")
	}
}
