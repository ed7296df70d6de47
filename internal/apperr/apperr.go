package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound covers unresolved battles and join tokens.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied covers non-creators attempting creator-only actions
	// and non-participants viewing a battle.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidState covers actions illegal for the battle's current status.
	ErrInvalidState = errors.New("invalid battle state")
	// ErrConflict means a start for this battle is already in flight.
	ErrConflict = errors.New("conflict")
	// ErrValidation covers malformed creation parameters.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable means Codeforces is unreachable or rate-limited;
	// the call is retryable.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInsufficientProblems means the catalog has fewer matching problems
	// than requested; not retryable without different parameters.
	ErrInsufficientProblems = errors.New("not enough problems match the filter")
)

// HTTPStatus maps a domain error to the status code the API layer reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInsufficientProblems):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
