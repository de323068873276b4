package httpx

import (
	"errors"
	"net/http"

	"github.com/tricktime/tricktime/internal/shared"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err using the status from StatusFor. The message is
// passed through verbatim so user-facing pages can display it directly.
func RespondError(w http.ResponseWriter, err error) {
	Error(w, StatusFor(err), err.Error())
}
