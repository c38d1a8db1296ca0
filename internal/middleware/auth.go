package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"clicktrack/internal/service/auth"
	"clicktrack/pkg/errors"
	"clicktrack/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
	// SessionUserContextKey holds the user id of an authenticated session
	SessionUserContextKey ContextKey = "session_user_id"
	// AdminClaimsContextKey holds verified admin claims
	AdminClaimsContextKey ContextKey = "admin_claims"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// TokenValidator authenticates API requests
type TokenValidator interface {
	Validate(ctx context.Context, r *http.Request) error
}

// SessionResolver maps an Authorization header to a user id, 0 for anonymous
type SessionResolver interface {
	UserIDFromHeader(authorization string) int64
}

// RequestID assigns each request a UUID, reusing a well-formed inbound one
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID assigned by RequestID
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDContextKey).(string)
	return id
}

// TokenAuth rejects requests without the shared domain token
func TokenAuth(tokens TokenValidator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := tokens.Validate(r.Context(), r); err != nil {
				appErr := errors.As(err)
				log.WithFields(map[string]interface{}{
					"path":       r.URL.Path,
					"code":       appErr.Code,
					"request_id": GetRequestID(r.Context()),
				}).Info("Token authentication failed")
				errors.WriteJSON(w, appErr, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionIdentity resolves the optional session bearer token. Invalid or
// absent tokens leave the request anonymous.
func SessionIdentity(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := sessions.UserIDFromHeader(r.Header.Get("Authorization")); userID > 0 {
				r = r.WithContext(context.WithValue(r.Context(), SessionUserContextKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionUserID returns the session user id, 0 when anonymous
func GetSessionUserID(ctx context.Context) int64 {
	id, _ := ctx.Value(SessionUserContextKey).(int64)
	return id
}

// RequireHTTPS rejects plain-HTTP requests when enabled. A TLS-terminating
// proxy must set X-Forwarded-Proto.
func RequireHTTPS(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil && !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
				errors.WriteJSON(w, errors.NewValidationError(errors.CodeInsecureTransport, "HTTPS is required"), GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestToken is the token the limiter buckets by
func requestToken(r *http.Request) string {
	return auth.ExtractToken(r)
}
