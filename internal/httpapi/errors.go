package httpapi

import (
	"log/slog"
	"net/http"

	"policy-management-service/internal/apperr"
	"policy-management-service/shared/httpx"
	"policy-management-service/shared/logx"
)

// writeServiceError maps an application error onto the transport. Anything
// that is not a tagged apperr is a 500 with its cause logged, never echoed.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger logx.Logger, err error) {
	if appErr, ok := apperr.As(err); ok {
		var details any
		if len(appErr.FieldErrors) > 0 {
			details = map[string]any{"fieldErrors": appErr.FieldErrors}
		}
		httpx.WriteError(w, r, appErr.HTTPStatus(), appErr.Code(), appErr.Message, details)
		return
	}
	logger.Error(r.Context(), "request_failed", "unhandled service error",
		slog.String("error_code", "INTERNAL_ERROR"),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, errs fieldErrors) {
	httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "Validation failed",
		map[string]any{"fieldErrors": errs})
}
