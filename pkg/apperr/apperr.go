// Package apperr defines the error taxonomy shared by the repository,
// service, and HTTP layers. Every failure that crosses the service
// boundary wraps exactly one of these sentinels.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound means the target memo or page does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the target exists but is owned by another user.
	ErrForbidden = errors.New("forbidden")
	// ErrCapacityExceeded means the memo already holds the maximum number of pages.
	ErrCapacityExceeded = errors.New("page limit reached")
	// ErrInvalidOrdinal means the requested page number would leave a gap
	// in the memo's page sequence.
	ErrInvalidOrdinal = errors.New("invalid page number")
	// ErrConflict means a concurrent mutation invalidated the operation.
	// The service retries these internally before surfacing them.
	ErrConflict = errors.New("conflicting update")
	// ErrUnavailable means the storage backend failed or timed out.
	ErrUnavailable = errors.New("storage unavailable")
)

// HTTPStatus maps a taxonomy error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrInvalidOrdinal):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
