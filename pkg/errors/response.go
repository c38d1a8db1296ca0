package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"
)

// As converts any error into an AppError, wrapping unknown errors as internal
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("Internal server error", err)
}

// NewErrorResponse builds the wire envelope for an AppError
func NewErrorResponse(appErr *AppError, requestID string) *ErrorResponse {
	resp := &ErrorResponse{Success: false}
	resp.Error.Type = appErr.Type
	resp.Error.Code = appErr.Code
	resp.Error.Message = appErr.Message
	resp.Error.Status = appErr.StatusCode
	resp.Error.Details = appErr.Details
	resp.Error.RequestID = requestID
	resp.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if appErr.StatusCode == http.StatusTooManyRequests {
		retry := appErr.RetryAfter
		resp.Error.RetryAfter = &retry
	}
	return resp
}

// WriteJSON writes err as a JSON error envelope. Retry-After is set for rate
// limit errors.
func WriteJSON(w http.ResponseWriter, err error, requestID string) *AppError {
	appErr := As(err)

	if appErr.StatusCode == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(appErr.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(appErr, requestID))

	return appErr
}
