package handler

import (
	"encoding/json"
	"net/http"

	"clicktrack/internal/middleware"
	"clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}, log *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

// writeError renders err as the error envelope, logging server-side failures
func writeError(w http.ResponseWriter, r *http.Request, err error, log *logger.Logger) {
	requestID := middleware.GetRequestID(r.Context())
	appErr := errors.WriteJSON(w, err, requestID)

	if appErr.StatusCode >= http.StatusInternalServerError {
		log.WithError(err).WithFields(map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": requestID,
		}).Error("Request failed")
	}
}
