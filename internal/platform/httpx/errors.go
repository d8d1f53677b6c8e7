// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// ErrBadRequest marks malformed requests rejected by the transport itself.
var ErrBadRequest = shared.Validationf("malformed request")

// RespondError maps domain errors to HTTP responses using RFC7807. Messages of
// classified errors are surfaced verbatim; anything else is logged and hidden.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrConfiguration):
		Problem(w, http.StatusUnprocessableEntity, "Configuration Error", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
